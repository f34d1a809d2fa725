package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"telegram-x-monitor/internal/config"
	"telegram-x-monitor/internal/domain/ports/repository"
	pg "telegram-x-monitor/internal/infra/db/postgres"
	"telegram-x-monitor/internal/infra/db/sqlite"
	"telegram-x-monitor/internal/infra/metrics"
)

// stores bundles the repositories of whichever backend is configured.
type stores struct {
	users       repository.UserRepository
	accounts    repository.AccountRepository
	requests    repository.AccessRequestRepository
	tm          repository.TransactionManager
	reportStats func()
	close       func()
}

// openStores uses Postgres when database.url is set and the SQLite file otherwise.
func openStores(ctx context.Context, cfg config.DatabaseConfig, logger *zerolog.Logger) (*stores, error) {
	if cfg.URL != "" {
		pool, err := pg.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info().Str("backend", "postgres").Msg("store ready")
		return &stores{
			users:       pg.NewUserRepo(pool),
			accounts:    pg.NewAccountRepo(pool),
			requests:    pg.NewAccessRequestRepo(pool),
			tm:          pg.NewTxManager(pool),
			reportStats: func() { pg.ReportPoolStats(pool) },
			close:       pool.Close,
		}, nil
	}

	db, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	logger.Info().Str("backend", "sqlite").Str("path", cfg.SQLitePath).Msg("store ready")
	return &stores{
		users:    db.Users(),
		accounts: db.Accounts(),
		requests: db.AccessRequests(),
		tm:       db.TxManager(),
		reportStats: func() {
			s := db.Stats()
			metrics.SetDBPoolStats("sqlite", int32(s.OpenConnections), int32(s.Idle), int32(s.InUse))
		},
		close: func() { _ = db.Close() },
	}, nil
}
