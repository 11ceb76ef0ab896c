// coordinator.go - Coordinator state store and load/reconcile.
//
// The record cache has a single writer (reconcile). Every mutating workflow reconciles after
// the ledger confirms it; readers get copies.

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const defaultMaxConcurrency = 4

// Coordinator orchestrates confidential-record workflows against the ledger.
type Coordinator struct {
	ledger    LedgerClient
	encryptor Encryptor
	decryptor Decryptor
	reporter  Reporter
	log       Logger
	metrics   Metrics
	journal   HistoryStore

	maxConcurrency int
	newID          func() string
	now            func() time.Time

	mu       sync.RWMutex
	records  []Record
	applied  uint64
	history  []HistoryEntry
	reconSeq atomic.Uint64

	flights  singleflight.Group
	flightMu sync.Mutex
	inflight map[string]int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithReporter sets the status reporter.
func WithReporter(r Reporter) Option {
	return func(c *Coordinator) { c.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithHistoryStore persists history entries as they are appended.
func WithHistoryStore(s HistoryStore) Option {
	return func(c *Coordinator) { c.journal = s }
}

// WithMaxConcurrency bounds parallel record fetches during reconcile.
func WithMaxConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithIDGenerator replaces the record identifier generator.
func WithIDGenerator(f func() string) Option {
	return func(c *Coordinator) { c.newID = f }
}

// WithClock replaces the history clock.
func WithClock(f func() time.Time) Option {
	return func(c *Coordinator) { c.now = f }
}

// New creates a coordinator over the given collaborators.
func New(ledger LedgerClient, enc Encryptor, dec Decryptor, opts ...Option) *Coordinator {
	c := &Coordinator{
		ledger:         ledger,
		encryptor:      enc,
		decryptor:      dec,
		reporter:       nopReporter{},
		log:            nopLogger{},
		metrics:        nopMetrics{},
		maxConcurrency: defaultMaxConcurrency,
		newID:          NewRecordID,
		now:            time.Now,
		inflight:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRecordID returns a collision-resistant record identifier.
func NewRecordID() string {
	return "sub-" + uuid.NewString()
}

// ListAll enumerates ledger records, fetches each one and replaces the cache.
// A record that fails to load is logged and skipped. When the context ends or no record can be
// reached the previous snapshot is kept and a network failure is returned.
func (c *Coordinator) ListAll(ctx context.Context) ([]Record, error) {
	c.emit(EventPending, "Loading encrypted subscriptions...", "list", "")
	records, err := c.reconcile(ctx)
	if err != nil {
		c.emit(EventError, "Failed to load data", "list", "")
		return nil, err
	}
	c.emit(EventSuccess, fmt.Sprintf("Loaded %d subscriptions", len(records)), "list", "")
	return records, nil
}

// Reconcile refreshes the cache from the ledger and reports only the error.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	_, err := c.reconcile(ctx)
	return err
}

func (c *Coordinator) reconcile(ctx context.Context) ([]Record, error) {
	start := time.Now()
	seq := c.reconSeq.Add(1)

	ids, err := c.ledger.RecordIDs(ctx)
	if err != nil {
		c.log.Error("reconcile: enumerate records: %v", err)
		c.metrics.RecordError(KindNetworkFailure.String())
		return nil, newError(KindNetworkFailure, "list", "", err)
	}

	fetched := make([]*Record, len(ids))
	var (
		g         errgroup.Group
		errMu     sync.Mutex
		transport int
		lastErr   error
	)
	g.SetLimit(c.maxConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			lr, err := c.ledger.Record(ctx, id)
			if err != nil {
				if isTransport(err) {
					errMu.Lock()
					transport++
					lastErr = err
					errMu.Unlock()
				}
				c.log.Warn("reconcile: skipping record %s: %v", id, err)
				c.metrics.RecordError(KindPartialLoadFailure.String())
				return nil
			}
			if lr.ID == "" {
				lr.ID = id
			}
			r := NewRecord(lr)
			fetched[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	// A batch cut short by the caller or a dropped ledger is not an empty listing.
	if err := ctx.Err(); err != nil {
		c.log.Error("reconcile: aborted while loading %d records: %v", len(ids), err)
		c.metrics.RecordError(KindNetworkFailure.String())
		return nil, newError(KindNetworkFailure, "list", "", err)
	}
	if transport > 0 && transport == len(ids) {
		c.log.Error("reconcile: every record fetch failed: %v", lastErr)
		c.metrics.RecordError(KindNetworkFailure.String())
		return nil, newError(KindNetworkFailure, "list", "", lastErr)
	}

	records := make([]Record, 0, len(fetched))
	for _, r := range fetched {
		if r != nil {
			records = append(records, *r)
		}
	}

	c.mu.Lock()
	// An older reconcile finishing late must not overwrite a newer snapshot.
	if seq > c.applied {
		c.records = records
		c.applied = seq
	}
	c.mu.Unlock()

	skipped := len(ids) - len(records)
	c.metrics.RecordReconcile(len(records), skipped, time.Since(start))
	c.log.Debug("reconcile: loaded %d records, skipped %d", len(records), skipped)
	return copyRecords(records), nil
}

// Records returns a snapshot of the cache.
func (c *Coordinator) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyRecords(c.records)
}

// Lookup returns the cached record with the given id.
func (c *Coordinator) Lookup(id string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// CheckAvailability probes the ledger contract.
func (c *Coordinator) CheckAvailability(ctx context.Context) (bool, error) {
	const op = "availability"
	c.emit(EventPending, "Checking system availability...", op, "")
	ok, err := c.ledger.IsAvailable(ctx)
	if err != nil {
		kind := classify(err, KindNetworkFailure)
		c.metrics.RecordError(kind.String())
		c.emit(EventError, "Availability check failed", op, "")
		return false, newError(kind, op, "", err)
	}
	if !ok {
		c.emit(EventError, "System is unavailable", op, "")
		return false, nil
	}
	c.emit(EventSuccess, "System is available", op, "")
	return true, nil
}

func (c *Coordinator) emit(status EventStatus, message, op, recordID string) {
	c.reporter.Report(Event{
		Status:   status,
		Message:  message,
		Op:       op,
		RecordID: recordID,
		Time:     c.now(),
	})
}

// isTransport reports whether err means the ledger could not be reached at all.
func isTransport(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func copyRecords(in []Record) []Record {
	out := make([]Record, len(in))
	copy(out, in)
	return out
}
