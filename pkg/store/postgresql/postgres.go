// Package postgresql provides PostgreSQL store implementation for traces,
// executions and the used-topic ledger.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// postgres driver
	_ "github.com/lib/pq"
	"github.com/pitchwire/pitchwire/pkg/store"
	"github.com/pitchwire/pitchwire/pkg/store/sqlbase"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db            *sql.DB
	logger        *slog.Logger
	traceRepo     *TraceRepository
	executionRepo *ExecutionRepository
	topicRepo     *TopicRepository
}

// NewStore opens a PostgreSQL connection and runs migrations.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		db:            database,
		logger:        logger,
		traceRepo:     NewTraceRepository(database, logger),
		executionRepo: NewExecutionRepository(database, logger),
		topicRepo:     NewTopicRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

var _ store.Store = (*Store)(nil)
