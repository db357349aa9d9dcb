package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/config"
	"github.com/tripgenie/tripgenie-backend/internal/database"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
	"github.com/tripgenie/tripgenie-backend/internal/repository/memory"
	"github.com/tripgenie/tripgenie-backend/internal/repository/postgres"
	"github.com/tripgenie/tripgenie-backend/internal/repository/redis"
)

const connectTimeout = 5 * time.Second

// NewStore builds the configured session store. When the redis backend cannot be
// reached and store.fallback_to_memory is set, the in-memory store is returned instead.
// The choice is made once; callers only ever see repository.Store.
func NewStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (repository.Store, error) {
	ttl := cfg.Store.SessionTTL

	switch cfg.Store.Backend {
	case "memory":
		logger.Info("Using in-memory session store")
		return memory.New(memory.Config{TTL: ttl, Logger: logger}), nil

	case "redis":
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		store, err := redis.New(connectCtx, redis.Config{URL: cfg.Redis.URL, TTL: ttl, Logger: logger})
		if err == nil {
			logger.WithField("url", redactURL(cfg.Redis.URL)).Info("Using Redis session store")
			return store, nil
		}
		if !cfg.Store.FallbackToMemory {
			return nil, err
		}
		logger.WithError(err).Warn("Redis unavailable, falling back to in-memory session store")
		return memory.New(memory.Config{TTL: ttl, Logger: logger}), nil

	case "postgres":
		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(database.GetDSN(cfg.Database)); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"host":   cfg.Database.Host,
			"driver": cfg.Database.Driver,
		}).Info("Using PostgreSQL session store")
		return postgres.New(db.DB, postgres.Config{TTL: ttl, Logger: logger}), nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// redactURL hides credentials in a redis URL for logging
func redactURL(raw string) string {
	for i := len("redis://"); i < len(raw); i++ {
		if raw[i] == '@' {
			return raw[:len("redis://")] + "***" + raw[i:]
		}
	}
	return raw
}
