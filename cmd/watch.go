// File: cmd/watch.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sbhusal-dev/meroapply/internal/notifier"
	"github.com/sbhusal-dev/meroapply/internal/observability"
	"github.com/sbhusal-dev/meroapply/internal/orchestrator"
	"github.com/sbhusal-dev/meroapply/internal/recorder"
	"github.com/sbhusal-dev/meroapply/internal/scheduler"
)

// Cap on one scheduled run so a wedged browser cannot stall the next firing.
const runTimeout = 30 * time.Minute

// newWatchCmd creates the `watch` command: keep running and fire a
// check-and-apply run on every configured cron schedule.
func newWatchCmd() *cobra.Command {
	var runOnStart bool

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Runs continuously, checking for IPOs on the configured schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			defer observability.Sync()

			forceHeadlessWithoutDisplay(cfg, logger)

			ledger, err := recorder.NewSQLiteRecorder(cfg.Database.Path, logger)
			if err != nil {
				return fmt.Errorf("could not open application ledger: %w", err)
			}
			defer func() {
				if cerr := ledger.Close(); cerr != nil {
					logger.Warn("Could not close application ledger.", zap.Error(cerr))
				}
			}()

			telegram := notifier.NewTelegram(cfg.Telegram, logger)
			orch := orchestrator.New(cfg, telegram, ledger, logger)

			job := func() {
				runCtx, cancel := context.WithTimeout(ctx, runTimeout)
				defer cancel()
				if err := orch.Run(runCtx); err != nil {
					logger.Error("Scheduled run failed.", zap.Error(err))
				}
			}

			sched := scheduler.New(job, logger)
			if err := sched.Register(cfg.Schedule.Crons); err != nil {
				return fmt.Errorf("could not register schedules: %w", err)
			}

			if runOnStart {
				logger.Info("Running initial check before entering the schedule.")
				sched.RunNow()
			}

			sched.Start()
			defer sched.Stop()

			logger.Info("Watch mode active.", zap.Strings("schedules", cfg.Schedule.Crons))
			<-ctx.Done()
			logger.Info("Shutdown signal received, stopping watch mode.")
			return nil
		},
	}

	watchCmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Fire one check immediately before waiting for the schedule")
	return watchCmd
}
