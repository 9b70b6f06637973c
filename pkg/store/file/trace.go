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

const defaultTraceListLimit = 50

// CreateTrace appends a trace row, assigning an id and timestamp when unset.
func (s *Store) CreateTrace(_ context.Context, trace *models.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trace.ID == "" {
		id, err := newID()
		if err != nil {
			return &store.TraceError{Op: "Create", TraceID: trace.TraceID, Err: err}
		}

		trace.ID = id
	}

	if trace.RequestedAt.IsZero() {
		trace.RequestedAt = time.Now().UTC()
	}

	err := s.writeRecord(tracesDir, trace.ID, trace)
	if err != nil {
		return &store.TraceError{Op: "Create", TraceID: trace.TraceID, Err: err}
	}

	return nil
}

// FinalizeTriggerTrace applies the single allowed mutation of a trace row.
func (s *Store) FinalizeTriggerTrace(_ context.Context, id string, status models.TraceStatus, respondedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var trace models.Trace

	err := s.readRecord(tracesDir, id, &trace)
	if err != nil {
		if os.IsNotExist(err) {
			return &store.TraceError{Op: "Finalize", TraceID: id, Err: store.ErrTraceNotFound}
		}

		return &store.TraceError{Op: "Finalize", TraceID: id, Err: err}
	}

	trace.Finalize(status, respondedAt)

	err = s.writeRecord(tracesDir, id, &trace)
	if err != nil {
		return &store.TraceError{Op: "Finalize", TraceID: id, Err: err}
	}

	return nil
}

// TraceByID returns a single trace row.
func (s *Store) TraceByID(_ context.Context, id string) (*models.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trace models.Trace

	err := s.readRecord(tracesDir, id, &trace)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &store.TraceError{Op: "GetByID", TraceID: id, Err: store.ErrTraceNotFound}
		}

		return nil, &store.TraceError{Op: "GetByID", TraceID: id, Err: err}
	}

	return &trace, nil
}

// TracesByTraceID returns every row of one logical run, ordered by attempt
// number then request time.
func (s *Store) TracesByTraceID(_ context.Context, traceID string) ([]*models.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	traces := make([]*models.Trace, 0)

	err := s.eachRecord(tracesDir,
		func() any { return &models.Trace{} },
		func(record any) error {
			trace, ok := record.(*models.Trace)
			if !ok {
				return fmt.Errorf("unexpected record type %T", record)
			}

			if trace.TraceID == traceID {
				traces = append(traces, trace)
			}

			return nil
		})
	if err != nil {
		return nil, &store.TraceError{Op: "GetByTraceID", TraceID: traceID, Err: err}
	}

	sortTraces(traces)

	return traces, nil
}

// ListTraces filters and paginates all trace rows, newest first.
func (s *Store) ListTraces(_ context.Context, req store.ListTracesRequest) (*store.TracePage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Trace, 0)

	err := s.eachRecord(tracesDir,
		func() any { return &models.Trace{} },
		func(record any) error {
			trace, ok := record.(*models.Trace)
			if !ok {
				return fmt.Errorf("unexpected record type %T", record)
			}

			if req.WorkflowID != "" && trace.WorkflowID != req.WorkflowID {
				return nil
			}

			if req.Status != "" && trace.OverallStatus != req.Status {
				return nil
			}

			matched = append(matched, trace)

			return nil
		})
	if err != nil {
		return nil, &store.TraceError{Op: "List", Err: err}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].RequestedAt.After(matched[j].RequestedAt)
	})

	limit := req.Limit
	if limit <= 0 {
		limit = defaultTraceListLimit
	}

	total := len(matched)
	offset := req.Offset

	if offset > total {
		offset = total
	}

	end := offset + limit
	if end > total {
		end = total
	}

	return &store.TracePage{
		Traces:      matched[offset:end],
		TotalCount:  total,
		HasNextPage: end < total,
	}, nil
}

func sortTraces(traces []*models.Trace) {
	sort.Slice(traces, func(i, j int) bool {
		if traces[i].AttemptNumber != traces[j].AttemptNumber {
			return traces[i].AttemptNumber < traces[j].AttemptNumber
		}

		return traces[i].RequestedAt.Before(traces[j].RequestedAt)
	})
}
