// Package bootstrap assembles the form-coach components from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"example.com/formcoach/internal/analysis"
	"example.com/formcoach/internal/coach"
	"example.com/formcoach/internal/config"
	"example.com/formcoach/internal/domain"
	"example.com/formcoach/internal/observability"
	"example.com/formcoach/internal/persistence"
	"example.com/formcoach/internal/persistence/memory"
	"example.com/formcoach/internal/persistence/postgres"
	"example.com/formcoach/internal/persistence/sqlite"
)

// Store is the configured Result Store. Pool is set only for the postgres driver.
type Store struct {
	domain.ResultStore
	Pool  *pgxpool.Pool
	close func()
}

// Close releases the underlying connection.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore connects the store selected by STORE_DRIVER once, for the life of the process.
func OpenStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		if cfg.MigrateOnStart {
			if err := persistence.RunMigrations(cfg.PostgresURL, logger); err != nil {
				return nil, err
			}
		}
		pool, err := postgres.NewPool(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		repo := postgres.NewRepository(pool, postgres.WithOutbox(cfg.OutboxActive()))
		return &Store{ResultStore: repo, Pool: pool, close: pool.Close}, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Store{ResultStore: store, close: func() {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("closing sqlite store failed")
			}
		}}, nil
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory store, analyses are lost on exit")
		return &Store{ResultStore: memory.NewStore()}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unsupported store driver %q", cfg.StoreDriver)
	}
}

// NewAnalyzer builds the process-backed engine adapter from ANALYZER_* settings.
func NewAnalyzer(cfg config.Config, logger zerolog.Logger) *analysis.ProcessAnalyzer {
	command, args := cfg.Analyzer()
	return analysis.NewProcessAnalyzer(command, args,
		analysis.WithTimeout(cfg.AnalyzerTimeout),
		analysis.WithQueueTimeout(cfg.AnalyzerQueueTimeout),
		analysis.WithMaxConcurrent(cfg.AnalyzerMaxConcurrent),
		analysis.WithLogger(observability.Component(logger, "analysis")),
	)
}

// NewService wires the analyzer, store and chat provider into a domain.Service.
// A provider without credentials only disables chat; analysis keeps working.
func NewService(cfg config.Config, store domain.ResultStore, logger zerolog.Logger) (*domain.Service, error) {
	coachLogger := observability.Component(logger, "coach")
	completer, err := coach.NewCompleter(cfg, coachLogger)
	if err != nil {
		if !errors.Is(err, coach.ErrProviderNotConfigured) {
			return nil, err
		}
		coachLogger.Warn().Err(err).Str("provider", cfg.ChatProvider).Msg("chat disabled until the provider is configured")
		completer = coach.UnavailableClient{Cause: err}
	}
	return domain.NewService(NewAnalyzer(cfg, logger), store, completer, coach.ComposePrompt), nil
}
