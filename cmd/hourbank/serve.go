package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/multimax/hourbank/api"
	"github.com/multimax/hourbank/report"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "HTTP port, overrides SERVER_PORT")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		a.cfg.Server.Port = port
	}

	builder, err := report.NewBuilder(a.service, a.cfg.Report.Workers, a.logger)
	if err != nil {
		return err
	}
	defer builder.Release()

	handler := api.NewHandler(a.service, a.store, builder, a.logger)
	router := api.NewRouter(handler, a.cfg.CORS.AllowedOrigins)

	if a.cfg.Scheduler.Enabled {
		scheduler := api.NewSweepScheduler(a.service, a.cfg.Scheduler.Interval, a.logger)
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting",
			zap.Int("port", a.cfg.Server.Port),
			zap.String("db", a.cfg.Database.Path),
			zap.String("env", a.cfg.Application.Env),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	a.logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
