package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/store"
)

const executionColumns = `
	id
  , workflow_id
  , trigger_trace_id
  , external_execution_id
  , status
  , started_at
  , completed_at
  , final_output
  , user_id
`

// updateStatusQuery carries the monotonic merge: the running-only guard
// ensures a terminal row is never rewritten by a late or racing writer.
const updateStatusQuery = `
	UPDATE executions
	SET status = $2
	  , completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN COALESCE(completed_at, $3) ELSE completed_at END
	  , final_output = COALESCE($4, final_output)
	  , external_execution_id = CASE WHEN $5 <> '' THEN $5 ELSE external_execution_id END
	WHERE id = $1 AND status = 'running'
`

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts a new execution aggregate.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return &store.ExecutionError{Op: "Create", Err: err}
		}

		execution.ID = id.String()
	}

	if execution.StartedAt.IsZero() {
		execution.StartedAt = time.Now().UTC()
	}

	if execution.Status == "" {
		execution.Status = models.ExecutionStatusRunning
	}

	outputJSON, err := json.Marshal(execution.FinalOutput)
	if err != nil {
		return &store.ExecutionError{Op: "Create", ExecutionID: execution.ID, Err: fmt.Errorf("failed to marshal final output: %w", err)}
	}

	query := `
		INSERT INTO executions (id, workflow_id, trigger_trace_id, external_execution_id,
status, started_at, completed_at, final_output, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.TriggerTraceID,
		execution.ExternalExecutionID,
		execution.Status,
		execution.StartedAt,
		execution.CompletedAt,
		outputJSON,
		execution.UserID,
	)
	if err != nil {
		return &store.ExecutionError{Op: "Create", ExecutionID: execution.ID, Err: err}
	}

	return nil
}

// GetByID returns one execution.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.ExecutionError{Op: "GetByID", ExecutionID: id, Err: store.ErrExecutionNotFound}
		}

		return nil, &store.ExecutionError{Op: "GetByID", ExecutionID: id, Err: err}
	}

	return execution, nil
}

// GetByTraceID resolves the execution opened for a logical run.
func (r *ExecutionRepository) GetByTraceID(ctx context.Context, traceID string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE trigger_trace_id = $1 ORDER BY started_at DESC LIMIT 1`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, traceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.ExecutionError{Op: "GetByTraceID", Err: store.ErrExecutionNotFound}
		}

		return nil, &store.ExecutionError{Op: "GetByTraceID", Err: err}
	}

	return execution, nil
}

// UpdateStatus merges a status transition. The WHERE guard makes the write
// monotonic at the database: a terminal row is never rewritten, so concurrent
// callbacks and pollers can race commutatively.
func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id string, update store.ExecutionUpdate) (*models.Execution, error) {
	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var outputJSON []byte

	if update.FinalOutput != nil {
		encoded, err := json.Marshal(update.FinalOutput)
		if err != nil {
			return nil, &store.ExecutionError{Op: "UpdateStatus", ExecutionID: id, Err: fmt.Errorf("failed to marshal final output: %w", err)}
		}

		outputJSON = encoded
	}

	_, err := r.db.ExecContext(ctx, updateStatusQuery, id, update.Status, at, outputJSON, update.ExternalExecutionID)
	if err != nil {
		return nil, &store.ExecutionError{Op: "UpdateStatus", ExecutionID: id, Err: err}
	}

	// Read back the merged row; a no-op update means a terminal status won.
	return r.GetByID(ctx, id)
}

// ListByWorkflow lists a workflow's executions, newest first.
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE workflow_id = $1 ORDER BY started_at DESC`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, &store.ExecutionError{Op: "ListByWorkflow", Err: err}
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, &store.ExecutionError{Op: "ListByWorkflow", Err: fmt.Errorf("failed to scan execution: %w", err)}
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, &store.ExecutionError{Op: "ListByWorkflow", Err: fmt.Errorf("error iterating executions: %w", err)}
	}

	return executions, nil
}

func (r *ExecutionRepository) scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution  models.Execution
		outputJSON []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.TriggerTraceID,
		&execution.ExternalExecutionID,
		&execution.Status,
		&execution.StartedAt,
		&execution.CompletedAt,
		&outputJSON,
		&execution.UserID,
	)
	if err != nil {
		return nil, err
	}

	if len(outputJSON) > 0 {
		err = json.Unmarshal(outputJSON, &execution.FinalOutput)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal final output: %w", err)
		}
	}

	return &execution, nil
}
