package file

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/store"
)

// CreateExecution persists a new execution aggregate.
func (s *Store) CreateExecution(_ context.Context, execution *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if execution.ID == "" {
		id, err := newID()
		if err != nil {
			return &store.ExecutionError{Op: "Create", Err: err}
		}

		execution.ID = id
	}

	if execution.StartedAt.IsZero() {
		execution.StartedAt = time.Now().UTC()
	}

	if execution.Status == "" {
		execution.Status = models.ExecutionStatusRunning
	}

	err := s.writeRecord(executionsDir, execution.ID, execution)
	if err != nil {
		return &store.ExecutionError{Op: "Create", ExecutionID: execution.ID, Err: err}
	}

	return nil
}

// ExecutionByID returns one execution.
func (s *Store) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.executionByID(id)
}

func (s *Store) executionByID(id string) (*models.Execution, error) {
	var execution models.Execution

	err := s.readRecord(executionsDir, id, &execution)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &store.ExecutionError{Op: "GetByID", ExecutionID: id, Err: store.ErrExecutionNotFound}
		}

		return nil, &store.ExecutionError{Op: "GetByID", ExecutionID: id, Err: err}
	}

	return &execution, nil
}

// ExecutionByTraceID resolves the execution opened for a logical run.
func (s *Store) ExecutionByTraceID(_ context.Context, traceID string) (*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Execution

	err := s.eachRecord(executionsDir,
		func() any { return &models.Execution{} },
		func(record any) error {
			execution, ok := record.(*models.Execution)
			if !ok {
				return fmt.Errorf("unexpected record type %T", record)
			}

			if execution.TriggerTraceID == traceID {
				found = execution
			}

			return nil
		})
	if err != nil {
		return nil, &store.ExecutionError{Op: "GetByTraceID", Err: err}
	}

	if found == nil {
		return nil, &store.ExecutionError{Op: "GetByTraceID", Err: store.ErrExecutionNotFound}
	}

	return found, nil
}

// UpdateExecutionStatus merges a status transition under the read-modify-write
// lock. The model's ApplyStatus carries the monotonicity rule, so a late
// running write against a terminal execution changes nothing.
func (s *Store) UpdateExecutionStatus(_ context.Context, id string, update store.ExecutionUpdate) (*models.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution, err := s.executionByID(id)
	if err != nil {
		return nil, err
	}

	// Mirrors the SQL guard: a terminal execution accepts no further writes,
	// not even side fields.
	if execution.Status.Terminal() {
		return execution, nil
	}

	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	execution.ApplyStatus(update.Status, at)

	if update.FinalOutput != nil {
		execution.FinalOutput = update.FinalOutput
	}

	if update.ExternalExecutionID != "" {
		execution.ExternalExecutionID = update.ExternalExecutionID
	}

	err = s.writeRecord(executionsDir, id, execution)
	if err != nil {
		return nil, &store.ExecutionError{Op: "UpdateStatus", ExecutionID: id, Err: err}
	}

	return execution, nil
}

// ExecutionsByWorkflow lists a workflow's executions, newest first.
func (s *Store) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	executions := make([]*models.Execution, 0)

	err := s.eachRecord(executionsDir,
		func() any { return &models.Execution{} },
		func(record any) error {
			execution, ok := record.(*models.Execution)
			if !ok {
				return fmt.Errorf("unexpected record type %T", record)
			}

			if execution.WorkflowID == workflowID {
				executions = append(executions, execution)
			}

			return nil
		})
	if err != nil {
		return nil, &store.ExecutionError{Op: "ListByWorkflow", Err: err}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}
