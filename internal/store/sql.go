package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"claim.box/internal/models"
)

var _ Store = (*SQLStore)(nil)

// secretRow maps the record onto the secrets table.
type secretRow struct {
	models.Secret
}

// TableName hard code table name
func (secretRow) TableName() string {
	return "secrets"
}

// GetSqliteDialector define Sqlite GORM dialector
func GetSqliteDialector(dbFile string) gorm.Dialector {
	return sqlite.Open(fmt.Sprintf("%s?_foreign_keys=on", dbFile))
}

// SQLStore persists records in a SQL database through GORM. SQL has no
// native TTL, so duration-expired rows are removed by a background sweep;
// Evaluate still reports EXPIRED from the timestamp in the meantime. The
// claim transaction is a single conditional UPDATE whose affected-row count
// decides whether the claim applied.
type SQLStore struct {
	db            *gorm.DB
	logTags       log.Fields
	cleanupCancel context.CancelFunc
}

// NewSQLStore opens the database, migrates the secrets table, and starts
// the expiry sweep.
func NewSQLStore(
	dialector gorm.Dialector, logLevel logger.LogLevel, cleanupInterval time.Duration,
) (*SQLStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect with DB [%w]", err)
	}

	if err := db.AutoMigrate(secretRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate secrets table [%w]", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	store := &SQLStore{
		db:            db,
		logTags:       log.Fields{"module": "store", "component": "sql-store"},
		cleanupCancel: cancel,
	}
	go store.cleanupLoop(ctx, cleanupInterval)
	return store, nil
}

func (s *SQLStore) Save(ctx context.Context, secret *models.Secret) error {
	row := secretRow{Secret: *secret}
	if tmp := s.db.WithContext(ctx).Create(&row); tmp.Error != nil {
		return fmt.Errorf("secret '%s' failed insert [%w]", secret.ID, tmp.Error)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*models.Secret, error) {
	var row secretRow
	if tmp := s.db.WithContext(ctx).Where("id = ?", id).First(&row); tmp.Error != nil {
		if errors.Is(tmp.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, tmp.Error
	}
	secret := row.Secret
	return &secret, nil
}

func (s *SQLStore) Claim(ctx context.Context, id string, now time.Time) (ClaimResult, error) {
	var result ClaimResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The predicate and the increment live in one UPDATE; two
		// concurrent claimants can never both pass it.
		update := tx.Model(&secretRow{}).
			Where("id = ? AND solved = ?", id, false).
			Where("max_claims = 0 OR claims_used < max_claims").
			Where("policy <> ? OR expires_at > ?", models.ExpiryAfterDuration, now).
			Updates(map[string]any{
				"claims_used": gorm.Expr("claims_used + 1"),
				"solved": gorm.Expr(
					"CASE WHEN one_time OR policy = ?"+
						" OR (max_claims > 0 AND claims_used + 1 >= max_claims)"+
						" THEN ? ELSE ? END",
					models.ExpiryAfterFirstView, true, false,
				),
			})
		if update.Error != nil {
			return update.Error
		}

		var row secretRow
		if tmp := tx.Where("id = ?", id).First(&row); tmp.Error != nil {
			if errors.Is(tmp.Error, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return tmp.Error
		}

		if update.RowsAffected == 0 {
			// Predicate failed; classify from the still-unmutated row.
			if err := evaluateErr(&row.Secret, now); err != nil {
				return err
			}
			return ErrQuotaReached
		}

		result = ClaimResult{ClaimsUsed: row.ClaimsUsed, Solved: row.Solved}
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}
	return result, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if tmp := s.db.WithContext(ctx).Where("id = ?", id).Delete(&secretRow{}); tmp.Error != nil {
		return fmt.Errorf("secret '%s' failed delete [%w]", id, tmp.Error)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s.cleanupCancel != nil {
		s.cleanupCancel()
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

func (s *SQLStore) cleanup(ctx context.Context) {
	tmp := s.db.WithContext(ctx).
		Where("policy = ? AND expires_at <= ?", models.ExpiryAfterDuration, time.Now()).
		Delete(&secretRow{})
	if tmp.Error != nil {
		log.WithFields(s.logTags).WithError(tmp.Error).Error("expiry sweep failed")
		return
	}
	if tmp.RowsAffected > 0 {
		log.WithFields(s.logTags).WithField("removed", tmp.RowsAffected).Debug("swept expired secrets")
	}
}
