package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/scheduler"
)

var scheduleNow bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run cycles on the configured cron schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "schedule")
		if err != nil {
			return err
		}
		defer env.Close()

		runner := scheduler.NewRunner(env.Cycle)
		sched := scheduler.New(runner, cfg.Schedule.Cron)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()

		if scheduleNow {
			if _, err := runner.TryRun(ctx); err != nil {
				zap.L().Error("initial cycle failed", zap.Error(err))
			}
		}

		<-ctx.Done()
		zap.L().Info("shutting down scheduler")
		return nil
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "run one cycle immediately before waiting for the schedule")
	rootCmd.AddCommand(scheduleCmd)
}
