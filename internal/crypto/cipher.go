package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// AlgorithmAESGCM tags payloads encrypted by this package.
const AlgorithmAESGCM = "aes-256-gcm"

const nonceSize = 12 // GCM standard nonce size

// ErrDecryptionFailed is returned for every integrity or authentication
// failure during decryption. It is deliberately the only failure signal:
// callers cannot distinguish a wrong key from corrupted ciphertext.
var ErrDecryptionFailed = errors.New("decryption failed")

// Encrypt seals plaintext under a 256-bit key with AES-GCM. A fresh random
// IV is generated on every call and returned alongside the ciphertext.
func Encrypt(plaintext []byte, key []byte) (ciphertext, iv []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("cipher creation failed: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("GCM creation failed: %w", err)
	}

	iv = make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("nonce generation failed: %w", err)
	}

	ciphertext = gcm.Seal(nil, iv, plaintext, nil)
	return ciphertext, iv, nil
}

// Decrypt opens ciphertext sealed by Encrypt. Any mismatch in key, IV, or
// ciphertext yields ErrDecryptionFailed, never a partial result.
func Decrypt(ciphertext, iv, key []byte) ([]byte, error) {
	if len(iv) != nonceSize {
		return nil, ErrDecryptionFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
