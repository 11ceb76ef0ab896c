// Package app wires configuration, keys, the ledger and the coordinator together for the
// daemon and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/abhaldrota/SubManage-FHE/internal/config"
	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
	"github.com/abhaldrota/SubManage-FHE/internal/fhevm"
	"github.com/abhaldrota/SubManage-FHE/internal/health"
	"github.com/abhaldrota/SubManage-FHE/internal/journal"
	"github.com/abhaldrota/SubManage-FHE/internal/ledger"
	"github.com/abhaldrota/SubManage-FHE/internal/logger"
	"github.com/abhaldrota/SubManage-FHE/internal/metrics"
	"github.com/abhaldrota/SubManage-FHE/internal/status"
)

// Version is reported by the health endpoint.
const Version = "0.3.0"

// App holds every wired component.
type App struct {
	Config      *config.Config
	Log         *logger.Logger
	Keys        *fhevm.Keys
	KMS         *fhevm.KMS
	Ledger      *ledger.Ledger
	Client      *ledger.Client
	Journal     *journal.Journal
	Metrics     *metrics.Collector
	Health      *health.Checker
	Events      *status.Recorder
	Coordinator *coordinator.Coordinator
}

// Option configures New.
type Option func(*options)

type options struct {
	reporters []coordinator.Reporter
	approve   ledger.ApproveFunc
}

// WithReporter adds a status sink next to the log sink and the event recorder.
func WithReporter(r coordinator.Reporter) Option {
	return func(o *options) { o.reporters = append(o.reporters, r) }
}

// WithApproval installs the signing approval hook on the ledger client.
func WithApproval(f ledger.ApproveFunc) Option {
	return func(o *options) { o.approve = f }
}

// New loads keys, opens the ledger and the journal, and builds the coordinator.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.NewCollector(),
		Health:  health.NewChecker(Version),
		Events:  status.NewRecorder(cfg.EventBufferSize),
	}

	start := time.Now()
	keys, err := fhevm.SetupOrLoadKeys(cfg.KeyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load circuit keys: %w", err)
	}
	log.Info("Circuit keys ready in %s", time.Since(start).Round(time.Millisecond))
	a.Keys = keys

	kms, err := fhevm.LoadOrGenerateKMS(filepath.Join(cfg.KeyDir, fhevm.KMSKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load KMS key: %w", err)
	}
	a.KMS = kms

	verifier := fhevm.NewVerifier(keys.InputVK, keys.DecryptVK)
	a.Ledger, err = ledger.Open(cfg.LedgerPath, cfg.ContractAddress, verifier)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	var clientOpts []ledger.ClientOption
	if o.approve != nil {
		clientOpts = append(clientOpts, ledger.WithApproval(o.approve))
	}
	a.Client = ledger.NewClient(a.Ledger, cfg.Account, clientOpts...)

	coordOpts := []coordinator.Option{
		coordinator.WithLogger(log),
		coordinator.WithMetrics(a.Metrics),
		coordinator.WithMaxConcurrency(cfg.MaxConcurrency),
	}
	if cfg.JournalPath != "" {
		a.Journal, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		coordOpts = append(coordOpts, coordinator.WithHistoryStore(a.Journal))
	}

	reporters := status.Multi{status.Log{L: log}, a.Events}
	reporters = append(reporters, o.reporters...)
	coordOpts = append(coordOpts, coordinator.WithReporter(reporters))

	observe := func(op string, d time.Duration) { a.Metrics.RecordProofGeneration(op, d) }
	enc := fhevm.NewEncryptor(kms.Pk, keys).WithObserver(observe)
	gw := fhevm.NewGateway(kms, keys, a.Client).WithObserver(observe)
	a.Coordinator = coordinator.New(a.Client, enc, gw, coordOpts...)

	if n, err := a.Coordinator.RestoreHistory(ctx); err != nil {
		log.Warn("Failed to restore history: %v", err)
	} else if n > 0 {
		log.Debug("Restored %d history entries", n)
	}

	a.registerHealth()
	return a, nil
}

func (a *App) registerHealth() {
	a.Health.Register("ledger", func(ctx context.Context) error {
		ok, err := a.Client.IsAvailable(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("ledger reports unavailable")
		}
		return nil
	})
	a.Health.Register("keys", func(context.Context) error {
		for _, name := range []string{
			fhevm.InputProvingKeyFile, fhevm.InputVerifyingKeyFile,
			fhevm.DecryptProvingKeyFile, fhevm.DecryptVerifyingKeyFile, fhevm.KMSKeyFile,
		} {
			if _, err := os.Stat(filepath.Join(a.Config.KeyDir, name)); err != nil {
				return fmt.Errorf("key file %s: %w", name, err)
			}
		}
		return nil
	})
	if a.Journal != nil {
		a.Health.RegisterOptional("journal", a.Journal.Ping)
	}
}

// Close releases the journal.
func (a *App) Close() error {
	if a.Journal != nil {
		return a.Journal.Close()
	}
	return nil
}
