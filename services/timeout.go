package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/krshsl/nora/interview"
	"github.com/krshsl/nora/models"
	"github.com/robfig/cron/v3"
)

const (
	DefaultMaxDuration = 30 * time.Minute
	feedbackSweepBatch = 50
	sweepRunTimeout    = 5 * time.Minute
)

type sweepStore interface {
	ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]models.Interview, error)
	ListAwaitingFeedback(ctx context.Context, limit int) ([]models.Interview, error)
	MarkFeedbackAttempt(ctx context.Context, interviewID string, at time.Time) error
}

type sweepOrchestrator interface {
	End(ctx context.Context, interviewID string) (*models.Interview, error)
	ScheduleFeedback(interview *models.Interview) bool
}

// SweepResult counts the actions of one sweep
type SweepResult struct {
	Ended    int `json:"ended"`
	Requeued int `json:"requeued"`
}

// InterviewSweeper ends interviews that outlived the maximum duration and re-queues
// completed interviews whose feedback was never stored.
type InterviewSweeper struct {
	store        sweepStore
	orchestrator sweepOrchestrator
	maxDuration  time.Duration
	schedule     string
	cron         *cron.Cron
	logger       *slog.Logger
}

func NewInterviewSweeper(store sweepStore, orchestrator sweepOrchestrator, maxDuration time.Duration, schedule string, logger *slog.Logger) *InterviewSweeper {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	if schedule == "" {
		schedule = "@every 1m"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InterviewSweeper{
		store:        store,
		orchestrator: orchestrator,
		maxDuration:  maxDuration,
		schedule:     schedule,
		logger:       logger,
	}
}

// Start schedules periodic sweeps
func (s *InterviewSweeper) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepRunTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("Interview sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule interview sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("Interview sweeper started", "schedule", s.schedule, "max_duration", s.maxDuration)
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish
func (s *InterviewSweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Interview sweeper stopped")
}

// RunOnce performs a single sweep
func (s *InterviewSweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	stale, err := s.store.ListStaleInProgress(ctx, time.Now().Add(-s.maxDuration))
	if err != nil {
		return res, err
	}
	ended := make(map[string]struct{}, len(stale))
	for _, iv := range stale {
		if _, err := s.orchestrator.End(ctx, iv.ID); err != nil {
			if interview.IsPrecondition(err) {
				continue
			}
			s.logger.Error("Failed to end expired interview", "interview_id", iv.ID, "error", err)
			continue
		}
		ended[iv.ID] = struct{}{}
		res.Ended++
		sweptInterviews.WithLabelValues("ended").Inc()
		s.logger.Info("Expired interview ended", "interview_id", iv.ID, "started", iv.StartTime)
	}

	awaiting, err := s.store.ListAwaitingFeedback(ctx, feedbackSweepBatch)
	if err != nil {
		return res, err
	}
	for i := range awaiting {
		if _, ok := ended[awaiting[i].ID]; ok {
			continue
		}
		if s.orchestrator.ScheduleFeedback(&awaiting[i]) {
			if err := s.store.MarkFeedbackAttempt(ctx, awaiting[i].ID, time.Now()); err != nil {
				s.logger.Warn("Failed to record feedback attempt", "interview_id", awaiting[i].ID, "error", err)
			}
			res.Requeued++
			sweptInterviews.WithLabelValues("requeued").Inc()
		}
	}

	if res.Ended > 0 || res.Requeued > 0 {
		s.logger.Info("Interview sweep finished", "ended", res.Ended, "requeued", res.Requeued)
	}
	return res, nil
}
