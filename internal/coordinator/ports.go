// ports.go - Collaborator interfaces consumed by the coordinator.

package coordinator

import (
	"context"
	"time"
)

// CreateTx is the ledger creation transaction for one record.
type CreateTx struct {
	ID           string
	Name         string
	Ciphertext   []byte
	Proof        []byte
	StatusCode   int64
	CategoryCode int64
	Description  string
}

// LedgerClient is read and signing access to the record contract.
// Signing calls return only after the ledger confirmed the transaction.
type LedgerClient interface {
	RecordIDs(ctx context.Context) ([]string, error)
	Record(ctx context.Context, id string) (LedgerRecord, error)
	CiphertextHandle(ctx context.Context, id string) (string, error)
	CreateRecord(ctx context.Context, tx CreateTx) error
	SubmitDecryptionProof(ctx context.Context, id string, clearValues, proof []byte) error
	IsAvailable(ctx context.Context) (bool, error)
	// Address is the contract address used as encryption and decryption target.
	Address() string
	// Account is the signing identity. Empty means unauthenticated.
	Account() string
}

// EncryptedInput is a ciphertext with its validity proof, consumed once by CreateRecord.
type EncryptedInput struct {
	Ciphertext []byte
	Proof      []byte
}

// Encryptor is the encryption service.
type Encryptor interface {
	Encrypt(ctx context.Context, target, caller string, amount uint64) (EncryptedInput, error)
}

// SubmitFunc submits encoded clear values and a decryption proof to the ledger.
type SubmitFunc func(ctx context.Context, clearValues, proof []byte) error

// Decryptor is the decryption/verification service. It must call submit exactly once and
// wait for it before returning the clear values keyed by handle.
type Decryptor interface {
	VerifyDecryption(ctx context.Context, handles []string, target string, submit SubmitFunc) (map[string]uint64, error)
}

// EventStatus is the status of a reporter event.
type EventStatus string

const (
	EventPending EventStatus = "pending"
	EventSuccess EventStatus = "success"
	EventError   EventStatus = "error"
)

// Event is emitted at the start and end of every workflow.
type Event struct {
	Status   EventStatus `json:"status"`
	Message  string      `json:"message"`
	Op       string      `json:"op"`
	RecordID string      `json:"record_id,omitempty"`
	Time     time.Time   `json:"time"`
}

// Reporter receives workflow status events.
type Reporter interface {
	Report(Event)
}

// Logger is the logging surface the coordinator needs.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Metrics receives workflow measurements.
type Metrics interface {
	RecordCreate(duration time.Duration)
	RecordDecrypt(outcome string, duration time.Duration)
	RecordError(kind string)
	RecordReconcile(loaded, skipped int, duration time.Duration)
}

// HistoryStore persists history entries beyond the process lifetime.
type HistoryStore interface {
	Append(ctx context.Context, entry HistoryEntry) error
	Load(ctx context.Context) ([]HistoryEntry, error)
}

type nopReporter struct{}

func (nopReporter) Report(Event) {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{}) {}
func (nopLogger) Error(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) RecordCreate(time.Duration) {}
func (nopMetrics) RecordDecrypt(string, time.Duration) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordReconcile(int, int, time.Duration) {}
