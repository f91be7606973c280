// File: cmd/apply.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sbhusal-dev/meroapply/internal/notifier"
	"github.com/sbhusal-dev/meroapply/internal/observability"
	"github.com/sbhusal-dev/meroapply/internal/orchestrator"
	"github.com/sbhusal-dev/meroapply/internal/recorder"
)

// newApplyCmd creates the `apply` command: one complete check-and-apply run.
func newApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Checks for open IPOs once and applies with every configured account",
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

			if err := orch.Run(ctx); err != nil {
				return fmt.Errorf("application run failed: %w", err)
			}
			return nil
		},
	}
}
