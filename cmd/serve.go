package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/scheduler"
	"github.com/sells-group/sheriff-sales/internal/server"
)

var (
	servePort     int
	serveSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the listings API and the auction map",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		runner := scheduler.NewRunner(env.Cycle)
		if serveSchedule {
			sched := scheduler.New(runner, cfg.Schedule.Cron)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()
		}

		api := server.New(server.Config{
			Store:       env.Store,
			Reconciler:  env.Reconciler,
			Maps:        env.Cycle,
			Runner:      runner,
			KMLPath:     cfg.Render.KMLPath,
			CORSOrigins: cfg.Server.CORSOrigins,
			BaseContext: ctx,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port), zap.Bool("scheduled", serveSchedule))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "also run cycles on the configured cron schedule")
	rootCmd.AddCommand(serveCmd)
}
