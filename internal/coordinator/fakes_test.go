package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeLedger is an in-memory LedgerClient with injectable failures.
type fakeLedger struct {
	mu       sync.Mutex
	address  string
	account  string
	order    []string
	records  map[string]*LedgerRecord
	handles  map[string]string
	failGet  map[string]error
	listErr  error
	createFn func(tx CreateTx) error
	submitFn func(id string, clearValues, proof []byte) error

	creates int
	submits int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		address: "0xledger",
		account: "0xalice",
		records: make(map[string]*LedgerRecord),
		handles: make(map[string]string),
		failGet: make(map[string]error),
	}
}

func (l *fakeLedger) put(r LedgerRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[r.ID]; !ok {
		l.order = append(l.order, r.ID)
	}
	rr := r
	l.records[r.ID] = &rr
	l.handles[r.ID] = "0xhandle-" + r.ID
}

func (l *fakeLedger) RecordIDs(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	return append([]string(nil), l.order...), nil
}

func (l *fakeLedger) Record(ctx context.Context, id string) (LedgerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failGet[id]; err != nil {
		return LedgerRecord{}, err
	}
	r, ok := l.records[id]
	if !ok {
		return LedgerRecord{}, ErrNotFound
	}
	return *r, nil
}

func (l *fakeLedger) CiphertextHandle(ctx context.Context, id string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handles[id]
	if !ok {
		return "", ErrNotFound
	}
	return h, nil
}

func (l *fakeLedger) CreateRecord(ctx context.Context, tx CreateTx) error {
	l.mu.Lock()
	l.creates++
	fn := l.createFn
	l.mu.Unlock()
	if fn != nil {
		if err := fn(tx); err != nil {
			return err
		}
	}
	l.put(LedgerRecord{
		ID:           tx.ID,
		Name:         tx.Name,
		Description:  tx.Description,
		Creator:      l.account,
		CreatedAt:    time.Unix(1700000000, 0),
		StatusCode:   tx.StatusCode,
		CategoryCode: tx.CategoryCode,
	})
	return nil
}

func (l *fakeLedger) SubmitDecryptionProof(ctx context.Context, id string, clearValues, proof []byte) error {
	l.mu.Lock()
	l.submits++
	fn := l.submitFn
	l.mu.Unlock()
	if fn != nil {
		return fn(id, clearValues, proof)
	}
	return l.markVerified(id, decodeValue(clearValues))
}

func (l *fakeLedger) markVerified(id string, v uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[id]
	if !ok {
		return ErrNotFound
	}
	if r.IsVerified {
		return ErrAlreadyVerified
	}
	r.IsVerified = true
	r.DecryptedValue = v
	return nil
}

func (l *fakeLedger) IsAvailable(ctx context.Context) (bool, error) { return true, nil }
func (l *fakeLedger) Address() string                                { return l.address }
func (l *fakeLedger) Account() string                                { return l.account }

func (l *fakeLedger) counts() (creates, submits int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creates, l.submits
}

func encodeValue(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func decodeValue(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// fakeEncryptor records calls and returns a deterministic ciphertext.
type fakeEncryptor struct {
	mu    sync.Mutex
	err   error
	calls int
	last  struct {
		target, caller string
		amount         uint64
	}
}

func (e *fakeEncryptor) Encrypt(ctx context.Context, target, caller string, amount uint64) (EncryptedInput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.last.target, e.last.caller, e.last.amount = target, caller, amount
	if e.err != nil {
		return EncryptedInput{}, e.err
	}
	return EncryptedInput{Ciphertext: []byte(fmt.Sprintf("ct:%d", amount)), Proof: []byte("input-proof")}, nil
}

// fakeDecryptor returns fixed clear values and calls submit once.
type fakeDecryptor struct {
	mu      sync.Mutex
	values  map[string]uint64
	err     error
	entered chan struct{}
	release chan struct{}
	skip    bool
	calls   int
}

func (d *fakeDecryptor) VerifyDecryption(ctx context.Context, handles []string, target string, submit SubmitFunc) (map[string]uint64, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.release != nil {
		<-d.release
	}
	if d.err != nil {
		return nil, d.err
	}
	out := make(map[string]uint64, len(handles))
	for _, h := range handles {
		out[h] = d.values[h]
	}
	if d.skip {
		return out, nil
	}
	if err := submit(ctx, encodeValue(out[handles[0]]), []byte("decryption-proof")); err != nil {
		return nil, fmt.Errorf("submit decryption proof: %w", err)
	}
	return out, nil
}

func (d *fakeDecryptor) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// recorder captures reporter events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

func (r *recorder) hasStatus(s EventStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Status == s {
			return true
		}
	}
	return false
}

var errBoom = errors.New("boom")

// waiting returns the number of callers currently attached to id's request.
func waiting(c *Coordinator, id string) int {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	return c.inflight[id]
}
