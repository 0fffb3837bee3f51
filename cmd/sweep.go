package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/krshsl/nora/interview"
	"github.com/krshsl/nora/services"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "End expired interviews and generate missing feedback once, then exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()
		wait, _ := cmd.Flags().GetDuration("wait")

		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer closeDatabase(db)

		gateway, err := services.NewGeminiGateway(cmd.Context(), cfg.AI.GeminiAPIKey, cfg.AI.GeminiModel, slog.Default())
		if err != nil {
			return err
		}

		orchestrator := interview.NewOrchestrator(repo, gateway, slog.Default(), cfg.OrchestratorOptions())
		orchestrator.OnFeedback(services.RecordFeedbackEvent)
		orchestrator.StartWorkers()
		defer orchestrator.Close()

		sweeper := services.NewInterviewSweeper(repo, orchestrator, cfg.Interview.MaxDuration, cfg.Interview.SweepSchedule, slog.Default())
		res, err := sweeper.RunOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		slog.Info("Sweep finished", "ended", res.Ended, "requeued", res.Requeued)

		ctx, cancel := context.WithTimeout(cmd.Context(), wait)
		defer cancel()
		return waitForFeedback(ctx, orchestrator)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().Duration("wait", 5*time.Minute, "how long to wait for queued feedback jobs")
}

func waitForFeedback(ctx context.Context, orchestrator *interview.Orchestrator) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for orchestrator.PendingFeedback() > 0 {
		select {
		case <-ctx.Done():
			slog.Warn("Stopped waiting for feedback jobs", "pending", orchestrator.PendingFeedback())
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
