// ledger.go - Reference record contract with JSON persistence.
//
// The Ledger enforces the contract rules: unique record ids, a valid input proof bound to the
// creating account, and one-way verification that rejects a second decryption proof.
// It is safe for concurrent use. When opened with a path, every mutation is persisted.

package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
	"github.com/abhaldrota/SubManage-FHE/internal/fhevm"
)

// Contract errors.
var (
	ErrRecordExists    = errors.New("record already exists")
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyVerified = errors.New("data already verified")
	ErrBindingMismatch = errors.New("ciphertext not bound to contract and sender")
	ErrUnavailable     = errors.New("contract unavailable")
)

// Record is the on-ledger state of one confidential record.
type Record struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Creator        string            `json:"creator"`
	CreatedAt      time.Time         `json:"created_at"`
	StatusCode     int64             `json:"status_code"`
	CategoryCode   int64             `json:"category_code"`
	Ciphertext     *fhevm.Ciphertext `json:"ciphertext"`
	Handle         string            `json:"handle"`
	IsVerified     bool              `json:"is_verified"`
	DecryptedValue uint64            `json:"decrypted_value"`
}

// Ledger is the record contract.
type Ledger struct {
	mu        sync.RWMutex
	address   string
	records   map[string]*Record
	order     []string
	handles   map[string]string
	available bool

	verifier *fhevm.Verifier
	path     string
	now      func() time.Time
}

// state is the persisted form of a Ledger.
type state struct {
	Address   string    `json:"address"`
	Available bool      `json:"available"`
	Records   []*Record `json:"records"`
}

// New creates an empty in-memory ledger at address.
func New(address string, verifier *fhevm.Verifier) *Ledger {
	return &Ledger{
		address:   address,
		records:   make(map[string]*Record),
		handles:   make(map[string]string),
		available: true,
		verifier:  verifier,
		now:       time.Now,
	}
}

// Open loads the ledger persisted at path, or creates a new one there.
func Open(path, address string, verifier *fhevm.Verifier) (*Ledger, error) {
	l, err := LoadLedgerFromFile(path, verifier)
	switch {
	case err == nil:
		if address != "" && l.address != address {
			return nil, fmt.Errorf("ledger %s holds contract %s, not %s", path, l.address, address)
		}
	case errors.Is(err, os.ErrNotExist):
		l = New(address, verifier)
		if err := l.SaveToFile(path); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	l.path = path
	return l, nil
}

// Address is the contract address.
func (l *Ledger) Address() string { return l.address }

// Create stores a new record after checking its input proof.
func (l *Ledger) Create(sender string, tx coordinator.CreateTx) error {
	ct, err := fhevm.ParseCiphertext(tx.Ciphertext)
	if err != nil {
		return err
	}
	if !ct.BoundTo(l.address, sender) {
		return ErrBindingMismatch
	}
	if err := l.verifier.VerifyInput(ct, tx.Proof); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.available {
		return ErrUnavailable
	}
	if _, ok := l.records[tx.ID]; ok {
		return fmt.Errorf("%w: %s", ErrRecordExists, tx.ID)
	}
	r := &Record{
		ID:           tx.ID,
		Name:         tx.Name,
		Description:  tx.Description,
		Creator:      sender,
		CreatedAt:    l.now().UTC(),
		StatusCode:   tx.StatusCode,
		CategoryCode: tx.CategoryCode,
		Ciphertext:   ct,
		Handle:       ct.Handle(),
	}
	l.insert(r)
	return l.persist()
}

func (l *Ledger) insert(r *Record) {
	l.records[r.ID] = r
	l.order = append(l.order, r.ID)
	l.handles[r.Handle] = r.ID
}

// IDs returns record ids in creation order.
func (l *Ledger) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// Get returns a copy of a record.
func (l *Ledger) Get(id string) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *r, nil
}

// Handle returns the ciphertext handle of a record.
func (l *Ledger) Handle(id string) (string, error) {
	r, err := l.Get(id)
	if err != nil {
		return "", err
	}
	return r.Handle, nil
}

// CiphertextByHandle resolves a handle to its stored ciphertext.
func (l *Ledger) CiphertextByHandle(handle string) (*fhevm.Ciphertext, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.handles[handle]
	if !ok {
		return nil, fmt.Errorf("%w: handle %s", ErrNotFound, handle)
	}
	ct := *l.records[id].Ciphertext
	return &ct, nil
}

// SubmitDecryption verifies a decryption proof and marks the record verified.
// A record that is already verified rejects every further submission.
func (l *Ledger) SubmitDecryption(id string, clearValues, proof []byte) error {
	l.mu.RLock()
	r, ok := l.records[id]
	if !ok {
		l.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	verified, available := r.IsVerified, l.available
	ct := *r.Ciphertext
	l.mu.RUnlock()
	if !available {
		return ErrUnavailable
	}
	if verified {
		return ErrAlreadyVerified
	}

	values, err := l.verifier.VerifyDecryption([]*fhevm.Ciphertext{&ct}, clearValues, proof)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Another submission may have landed while the proof was being checked.
	if r.IsVerified {
		return ErrAlreadyVerified
	}
	r.IsVerified = true
	r.DecryptedValue = values[0]
	return l.persist()
}

// IsAvailable reports whether the contract accepts calls.
func (l *Ledger) IsAvailable() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.available
}

// SetAvailable pauses or resumes the contract.
func (l *Ledger) SetAvailable(ok bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.available = ok
	return l.persist()
}

// persist writes the ledger if it has a path. Callers hold l.mu.
func (l *Ledger) persist() error {
	if l.path == "" {
		return nil
	}
	return l.save(l.path)
}

// SaveToFile saves the ledger to a JSON file, replacing it atomically.
func (l *Ledger) SaveToFile(path string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.save(path)
}

func (l *Ledger) save(path string) error {
	st := state{Address: l.address, Available: l.available, Records: make([]*Record, 0, len(l.order))}
	for _, id := range l.order {
		st.Records = append(st.Records, l.records[id])
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ledger-*.json")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadLedgerFromFile loads a ledger from a JSON file.
// Returns an error if the file is invalid or cannot be read.
func LoadLedgerFromFile(path string, verifier *fhevm.Verifier) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var st state
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return nil, fmt.Errorf("ledger %s: %w", path, err)
	}
	l := New(st.Address, verifier)
	l.available = st.Available
	for _, r := range st.Records {
		if r.Ciphertext == nil {
			return nil, fmt.Errorf("ledger %s: record %s has no ciphertext", path, r.ID)
		}
		if _, dup := l.records[r.ID]; dup {
			return nil, fmt.Errorf("ledger %s: %w: %s", path, ErrRecordExists, r.ID)
		}
		l.insert(r)
	}
	return l, nil
}
