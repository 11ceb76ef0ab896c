// record.go - Record projection, classification and history entries.

package coordinator

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the public activity classification of a record.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Category is the public subscription category of a record.
type Category string

const (
	CategoryStreaming Category = "streaming"
	CategorySoftware  Category = "software"
	CategoryOther     Category = "other"
)

// Public codes stored on the ledger.
const (
	StatusCodeActive      int64 = 1
	CategoryCodeStreaming int64 = 1
	CategoryCodeSoftware  int64 = 2
	CategoryCodeOther     int64 = 3
)

// ClassifyStatus maps a ledger status code to a Status. Unknown codes are inactive.
func ClassifyStatus(code int64) Status {
	if code == StatusCodeActive {
		return StatusActive
	}
	return StatusInactive
}

// ClassifyCategory maps a ledger category code to a Category. Unknown codes are other.
func ClassifyCategory(code int64) Category {
	switch code {
	case CategoryCodeStreaming:
		return CategoryStreaming
	case CategoryCodeSoftware:
		return CategorySoftware
	default:
		return CategoryOther
	}
}

// CategoryCode maps a category name to its ledger code. Unknown names map to other.
func CategoryCode(name string) int64 {
	switch Category(strings.ToLower(strings.TrimSpace(name))) {
	case CategoryStreaming:
		return CategoryCodeStreaming
	case CategorySoftware:
		return CategoryCodeSoftware
	default:
		return CategoryCodeOther
	}
}

// LedgerRecord is the record view returned by the ledger client.
// DecryptedValue is only meaningful when IsVerified is true.
type LedgerRecord struct {
	ID             string
	Name           string
	Description    string
	Creator        string
	CreatedAt      time.Time
	StatusCode     int64
	CategoryCode   int64
	IsVerified     bool
	DecryptedValue uint64
}

// Record is the coordinator's classified projection of a ledger record.
// The confidential amount is reachable only through Amount.
type Record struct {
	ID           string
	Name         string
	Description  string
	Creator      string
	CreatedAt    time.Time
	StatusCode   int64
	CategoryCode int64
	Status       Status
	Category     Category
	Verified     bool

	amount uint64
}

// NewRecord classifies a ledger view. The decrypted value is dropped unless verified.
func NewRecord(lr LedgerRecord) Record {
	r := Record{
		ID:           lr.ID,
		Name:         lr.Name,
		Description:  lr.Description,
		Creator:      lr.Creator,
		CreatedAt:    lr.CreatedAt,
		StatusCode:   lr.StatusCode,
		CategoryCode: lr.CategoryCode,
		Status:       ClassifyStatus(lr.StatusCode),
		Category:     ClassifyCategory(lr.CategoryCode),
		Verified:     lr.IsVerified,
	}
	if lr.IsVerified {
		r.amount = lr.DecryptedValue
	}
	return r
}

// Amount returns the decrypted amount and whether it is known.
func (r Record) Amount() (uint64, bool) {
	if !r.Verified {
		return 0, false
	}
	return r.amount, true
}

type recordJSON struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Creator        string    `json:"creator"`
	CreatedAt      time.Time `json:"created_at"`
	StatusCode     int64     `json:"status_code"`
	CategoryCode   int64     `json:"category_code"`
	Status         Status    `json:"status"`
	Category       Category  `json:"category"`
	Verified       bool      `json:"is_verified"`
	DecryptedValue *uint64   `json:"decrypted_value,omitempty"`
}

// MarshalJSON omits decrypted_value for unverified records.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		Creator:      r.Creator,
		CreatedAt:    r.CreatedAt,
		StatusCode:   r.StatusCode,
		CategoryCode: r.CategoryCode,
		Status:       r.Status,
		Category:     r.Category,
		Verified:     r.Verified,
	}
	if v, ok := r.Amount(); ok {
		out.DecryptedValue = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds a record from its JSON view. Classification is recomputed from the
// codes and a value is kept only for verified records.
func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	lr := LedgerRecord{
		ID:           in.ID,
		Name:         in.Name,
		Description:  in.Description,
		Creator:      in.Creator,
		CreatedAt:    in.CreatedAt,
		StatusCode:   in.StatusCode,
		CategoryCode: in.CategoryCode,
		IsVerified:   in.Verified && in.DecryptedValue != nil,
	}
	if lr.IsVerified {
		lr.DecryptedValue = *in.DecryptedValue
	}
	*r = NewRecord(lr)
	return nil
}

// HistoryKind tags a history entry.
type HistoryKind string

const (
	HistoryCreate  HistoryKind = "create"
	HistoryDecrypt HistoryKind = "decrypt"
)

// CreatePayload is carried by create entries.
type CreatePayload struct {
	Name string `json:"name"`
}

// DecryptPayload is carried by decrypt entries.
type DecryptPayload struct {
	Value uint64 `json:"value"`
}

// HistoryEntry is one append-only log entry. Exactly one payload is set, matching Kind.
type HistoryEntry struct {
	Kind      HistoryKind     `json:"kind"`
	RecordID  string          `json:"record_id"`
	Timestamp time.Time       `json:"timestamp"`
	Create    *CreatePayload  `json:"create,omitempty"`
	Decrypt   *DecryptPayload `json:"decrypt,omitempty"`
}

// NewCreateEntry builds a create history entry.
func NewCreateEntry(recordID, name string, at time.Time) HistoryEntry {
	return HistoryEntry{Kind: HistoryCreate, RecordID: recordID, Timestamp: at, Create: &CreatePayload{Name: name}}
}

// NewDecryptEntry builds a decrypt history entry.
func NewDecryptEntry(recordID string, value uint64, at time.Time) HistoryEntry {
	return HistoryEntry{Kind: HistoryDecrypt, RecordID: recordID, Timestamp: at, Decrypt: &DecryptPayload{Value: value}}
}

// Stats is derived from the current cache.
type Stats struct {
	Total       int    `json:"total"`
	Active      int    `json:"active"`
	Verified    int    `json:"verified"`
	TotalAmount uint64 `json:"total_amount"`
}

// Phase is the per-record decrypt state.
type Phase string

const (
	PhaseUnverified    Phase = "unverified"
	PhaseAwaitingProof Phase = "awaiting_proof"
	PhaseVerified      Phase = "verified"
)
