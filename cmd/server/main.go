package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm/logger"

	"claim.box/config"
	"claim.box/internal/api"
	"claim.box/internal/claim"
	"claim.box/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("config error")
	}

	st := initStore(cfg)
	defer st.Close()

	engine := claim.NewEngine(st)
	router := api.SetupRouter(engine, cfg)

	log.WithFields(log.Fields{
		"addr":     cfg.Addr(),
		"base_url": cfg.Server.BaseURL,
		"store":    cfg.Store.Type,
	}).Info("server starting")

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func initStore(cfg *config.Config) store.Store {
	switch cfg.Store.Type {
	case "redis":
		st, err := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		return st
	case "sql":
		st, err := store.NewSQLStore(
			store.GetSqliteDialector(cfg.Store.SQL.Path), logger.Error, 30*time.Second,
		)
		if err != nil {
			log.WithError(err).Fatal("sql store initialization failed")
		}
		return st
	default:
		return store.NewMemoryStore(30 * time.Second)
	}
}
