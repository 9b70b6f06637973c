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

const defaultTraceListLimit = 50

const traceColumns = `
	id
  , trace_id
  , execution_id
  , attempt_number
  , source_service
  , destination_service
  , workflow_id
  , action
  , user_id
  , requested_at
  , responded_at
  , duration_ms
  , request_payload
  , response_payload
  , overall_status
  , error_code
  , error_detail
  , external_execution_id
`

// TraceRepository handles trace-related database operations.
type TraceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTraceRepository creates a new trace repository.
func NewTraceRepository(db *sql.DB, logger *slog.Logger) *TraceRepository {
	return &TraceRepository{db: db, logger: logger}
}

// Create inserts a trace row.
func (r *TraceRepository) Create(ctx context.Context, trace *models.Trace) error {
	if trace.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return &store.TraceError{Op: "Create", TraceID: trace.TraceID, Err: err}
		}

		trace.ID = id.String()
	}

	if trace.RequestedAt.IsZero() {
		trace.RequestedAt = time.Now().UTC()
	}

	requestJSON, err := json.Marshal(trace.RequestPayload)
	if err != nil {
		return &store.TraceError{Op: "Create", TraceID: trace.TraceID, Err: fmt.Errorf("failed to marshal request payload: %w", err)}
	}

	responseJSON, err := json.Marshal(trace.ResponsePayload)
	if err != nil {
		return &store.TraceError{Op: "Create", TraceID: trace.TraceID, Err: fmt.Errorf("failed to marshal response payload: %w", err)}
	}

	query := `
		INSERT INTO traces (id, trace_id, execution_id, attempt_number, source_service,
destination_service, workflow_id, action, user_id, requested_at, responded_at, duration_ms,
request_payload, response_payload, overall_status, error_code, error_detail, external_execution_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = r.db.ExecContext(ctx, query,
		trace.ID,
		trace.TraceID,
		trace.ExecutionID,
		trace.AttemptNumber,
		trace.SourceService,
		trace.DestinationService,
		trace.WorkflowID,
		trace.Action,
		trace.UserID,
		trace.RequestedAt,
		trace.RespondedAt,
		trace.DurationMs,
		requestJSON,
		responseJSON,
		trace.OverallStatus,
		trace.ErrorCode,
		trace.ErrorDetail,
		trace.ExternalExecutionID,
	)
	if err != nil {
		return &store.TraceError{Op: "Create", TraceID: trace.TraceID, Err: err}
	}

	return nil
}

// FinalizeTrigger applies the one-shot completion update of a trigger row.
func (r *TraceRepository) FinalizeTrigger(ctx context.Context, id string, status models.TraceStatus, respondedAt time.Time) error {
	query := `
		UPDATE traces
		SET overall_status = $2
		  , responded_at = $3
		  , duration_ms = (EXTRACT(EPOCH FROM ($3::timestamptz - requested_at)) * 1000)::bigint
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, status, respondedAt)
	if err != nil {
		return &store.TraceError{Op: "Finalize", TraceID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &store.TraceError{Op: "Finalize", TraceID: id, Err: err}
	}

	if affected == 0 {
		return &store.TraceError{Op: "Finalize", TraceID: id, Err: store.ErrTraceNotFound}
	}

	return nil
}

// GetByID returns a single trace row.
func (r *TraceRepository) GetByID(ctx context.Context, id string) (*models.Trace, error) {
	query := `SELECT ` + traceColumns + ` FROM traces WHERE id = $1`

	trace, err := r.scanTrace(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.TraceError{Op: "GetByID", TraceID: id, Err: store.ErrTraceNotFound}
		}

		return nil, &store.TraceError{Op: "GetByID", TraceID: id, Err: err}
	}

	return trace, nil
}

// GetByTraceID returns every row of one logical run in attempt order.
func (r *TraceRepository) GetByTraceID(ctx context.Context, traceID string) ([]*models.Trace, error) {
	query := `SELECT ` + traceColumns + ` FROM traces WHERE trace_id = $1 ORDER BY attempt_number ASC, requested_at ASC`

	rows, err := r.db.QueryContext(ctx, query, traceID)
	if err != nil {
		return nil, &store.TraceError{Op: "GetByTraceID", TraceID: traceID, Err: err}
	}

	defer r.closeRows(ctx, rows)

	traces, err := r.collectTraces(rows)
	if err != nil {
		return nil, &store.TraceError{Op: "GetByTraceID", TraceID: traceID, Err: err}
	}

	return traces, nil
}

// List filters and paginates all trace rows, newest first.
func (r *TraceRepository) List(ctx context.Context, req store.ListTracesRequest) (*store.TracePage, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultTraceListLimit
	}

	where := ` WHERE ($1 = '' OR workflow_id = $1) AND ($2 = '' OR overall_status = $2)`

	var total int

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM traces`+where, req.WorkflowID, string(req.Status)).Scan(&total)
	if err != nil {
		return nil, &store.TraceError{Op: "List", Err: err}
	}

	query := `SELECT ` + traceColumns + ` FROM traces` + where + `
		ORDER BY requested_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryContext(ctx, query, req.WorkflowID, string(req.Status), limit, req.Offset)
	if err != nil {
		return nil, &store.TraceError{Op: "List", Err: err}
	}

	defer r.closeRows(ctx, rows)

	traces, err := r.collectTraces(rows)
	if err != nil {
		return nil, &store.TraceError{Op: "List", Err: err}
	}

	return &store.TracePage{
		Traces:      traces,
		TotalCount:  total,
		HasNextPage: req.Offset+len(traces) < total,
	}, nil
}

func (r *TraceRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func (r *TraceRepository) collectTraces(rows *sql.Rows) ([]*models.Trace, error) {
	traces := make([]*models.Trace, 0)

	for rows.Next() {
		trace, err := r.scanTrace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}

		traces = append(traces, trace)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating traces: %w", err)
	}

	return traces, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TraceRepository) scanTrace(row rowScanner) (*models.Trace, error) {
	var (
		trace        models.Trace
		requestJSON  []byte
		responseJSON []byte
	)

	err := row.Scan(
		&trace.ID,
		&trace.TraceID,
		&trace.ExecutionID,
		&trace.AttemptNumber,
		&trace.SourceService,
		&trace.DestinationService,
		&trace.WorkflowID,
		&trace.Action,
		&trace.UserID,
		&trace.RequestedAt,
		&trace.RespondedAt,
		&trace.DurationMs,
		&requestJSON,
		&responseJSON,
		&trace.OverallStatus,
		&trace.ErrorCode,
		&trace.ErrorDetail,
		&trace.ExternalExecutionID,
	)
	if err != nil {
		return nil, err
	}

	if len(requestJSON) > 0 {
		err = json.Unmarshal(requestJSON, &trace.RequestPayload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal request payload: %w", err)
		}
	}

	if len(responseJSON) > 0 {
		err = json.Unmarshal(responseJSON, &trace.ResponsePayload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal response payload: %w", err)
		}
	}

	return &trace, nil
}
