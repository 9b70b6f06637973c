// Package schedule starts workflows on the cron expressions their manifests
// declare.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/pitchwire/pitchwire/pkg/router"
	"github.com/robfig/cron/v3"
)

// Routes is the slice of the router the scheduler needs.
type Routes interface {
	Route(ctx context.Context, req router.Request) (*router.Result, error)
}

// Scheduler owns one cron runner with an entry per scheduled manifest.
type Scheduler struct {
	router Routes
	cron   *cron.Cron
	logger *slog.Logger
}

func NewScheduler(logger *slog.Logger, routes Routes) *Scheduler {
	return &Scheduler{
		router: routes,
		logger: logger.With("module", "schedule"),
	}
}

// Start registers every manifest with an enabled schedule trigger and begins
// firing. Manifests without a schedule are skipped silently.
func (s *Scheduler) Start(ctx context.Context, manifests []*models.WorkflowManifest) error {
	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	registered := 0

	for _, manifest := range s.scheduled(manifests) {
		if err := s.add(manifest); err != nil {
			return err
		}

		registered++
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "workflows", registered)

	return nil
}

func (s *Scheduler) scheduled(manifests []*models.WorkflowManifest) []*models.WorkflowManifest {
	out := make([]*models.WorkflowManifest, 0, len(manifests))

	for _, manifest := range manifests {
		trigger := manifest.Triggers.Schedule
		if trigger == nil || !trigger.Enabled {
			continue
		}

		out = append(out, manifest)
	}

	return out
}

func (s *Scheduler) add(manifest *models.WorkflowManifest) error {
	workflowID := manifest.ID
	cronExpr := manifest.Triggers.Schedule.Cron

	logger := s.logger.With("workflow_id", workflowID, "cron", cronExpr)

	_, err := s.cron.AddFunc(cronExpr, func() {
		logger.Info("Scheduled trigger fired")

		result, err := s.router.Route(context.Background(), router.Request{
			WorkflowID:    workflowID,
			Action:        "scheduled",
			SourceService: "pitchwire-scheduler",
		})
		if err != nil {
			logger.Error("Scheduled trigger failed", "error", err)

			return
		}

		logger.Info("Scheduled run started", "trace_id", result.TraceID, "execution_id", result.ExecutionID)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule workflow %s: %w", workflowID, err)
	}

	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping scheduler")

	if s.cron != nil {
		s.cron.Stop()
	}

	return nil
}
