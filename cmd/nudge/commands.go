package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nudge/internal/db"
	httpx "nudge/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and webhooks, deliver the outbox and run the hourly scheduler",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run one scheduler tick and exit",
	Args:  cobra.NoArgs,
	RunE:  runSchedule,
}

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Run one outbox delivery pass and exit",
	Args:  cobra.NoArgs,
	RunE:  runDeliver,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update tables and indexes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := db.AutoMigrateAndIndexes(a.db); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	},
}

var skipMigrate bool

func init() {
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not migrate on startup")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !skipMigrate {
		if err := db.AutoMigrateAndIndexes(a.db); err != nil {
			return err
		}
	}
	jwtSvc, err := newJWT(cfg)
	if err != nil {
		return err
	}

	r := httpx.NewRouter(cfg, httpx.Deps{
		DB:          a.db,
		JWT:         jwtSvc,
		Tasks:       a.tasks,
		Contacts:    a.contacts,
		ContactRepo: a.contactRepo,
		Outbox:      a.outboxRepo,
		Interpreter: a.interpreter,
		Log:         logger,
	})

	ctx, stop := signalContext()
	defer stop()

	done := make(chan struct{}, 2)
	go func() { a.worker.Run(ctx); done <- struct{}{} }()
	go func() { a.scheduler.Run(ctx, cfg.Scheduler.Interval); done <- struct{}{} }()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-done
	<-done
	logger.Info("stopped")
	return err
}

func runSchedule(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	sum, err := a.scheduler.Tick(ctx)
	if err != nil {
		return err
	}
	logger.Info("scheduler tick",
		zap.Int("users", sum.Users),
		zap.Int("enqueued", sum.Enqueued),
		zap.Int("skipped", sum.Skipped),
		zap.Int("errors", sum.Errors))
	return nil
}

func runDeliver(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	sum, err := a.worker.RunOnce(ctx)
	if err != nil {
		return err
	}
	logger.Info("outbox pass",
		zap.Int("processed", sum.Processed),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("dead_lettered", sum.DeadLettered),
		zap.Int("skipped", sum.Skipped),
		zap.Int("reaped", sum.Reaped),
		zap.Int("errors", sum.Errors))
	return nil
}
