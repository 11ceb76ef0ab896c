// main.go - subledgerd serves the confidential subscription ledger over HTTP.
//
// The daemon loads (or generates) the circuit and KMS keys, opens the ledger file, refreshes
// the record cache on the configured cron schedule and exposes every workflow on the HTTP API.
//
// Usage:
//
//	subledgerd -config subledger.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/abhaldrota/SubManage-FHE/internal/api"
	"github.com/abhaldrota/SubManage-FHE/internal/app"
	"github.com/abhaldrota/SubManage-FHE/internal/config"
	"github.com/abhaldrota/SubManage-FHE/internal/logger"
	"github.com/abhaldrota/SubManage-FHE/internal/ratelimit"
)

func main() {
	configPath := flag.String("config", "subledger.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "subledgerd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	auditPath := ""
	if cfg.EnableAudit {
		auditPath = cfg.AuditLogPath
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFile, auditPath)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("Ledger %s opened from %s, signing account %q", cfg.ContractAddress, cfg.LedgerPath, cfg.Account)
	log.Audit("daemon_started", map[string]interface{}{
		"version":  app.Version,
		"contract": cfg.ContractAddress,
		"account":  cfg.Account,
	})

	refresh := func() {
		rctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
		defer cancel()
		if err := a.Coordinator.Reconcile(rctx); err != nil {
			log.Warn("Scheduled refresh failed: %v", err)
		}
	}
	refresh()

	var scheduler *cron.Cron
	if cfg.RefreshSchedule != "" {
		sched, err := config.ParseSchedule(cfg.RefreshSchedule)
		if err != nil {
			return fmt.Errorf("invalid refresh_schedule: %w", err)
		}
		scheduler = cron.New()
		scheduler.Schedule(sched, cron.FuncJob(refresh))
		scheduler.Start()
		log.Info("Record refresh scheduled: %s", cfg.RefreshSchedule)
	}

	refillEvery, err := cfg.RefillEvery()
	if err != nil {
		return err
	}
	server := api.NewServer(a.Coordinator, api.Options{
		Account:      cfg.Account,
		Limiter:      ratelimit.New(cfg.RateLimitTokens, cfg.RateLimitRefill, refillEvery),
		Health:       a.Health,
		Metrics:      a.Metrics,
		Events:       a.Events,
		Log:          log,
		Timeout:      cfg.Timeout(),
		HistoryLimit: cfg.HistoryViewSize,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown: %v", err)
	}
	log.Audit("daemon_stopped", map[string]interface{}{"version": app.Version})
	return nil
}
