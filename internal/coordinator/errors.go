// errors.go - Failure taxonomy and classification for coordinator workflows.

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a workflow failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindUserRejected
	KindNetworkFailure
	KindAlreadyVerified
	KindEncryptionFailure
	KindVerificationFailure
	KindPartialLoadFailure
	KindInvalidInput
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindUserRejected:
		return "user_rejected"
	case KindNetworkFailure:
		return "network_failure"
	case KindAlreadyVerified:
		return "already_verified"
	case KindEncryptionFailure:
		return "encryption_failure"
	case KindVerificationFailure:
		return "verification_failure"
	case KindPartialLoadFailure:
		return "partial_load_failure"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Sentinel errors collaborators wrap so the coordinator can classify them with errors.Is.
var (
	ErrUserRejected    = errors.New("user rejected transaction")
	ErrAlreadyVerified = errors.New("data already verified")
	ErrNetwork         = errors.New("network failure")
	ErrNotFound        = errors.New("record not found")
	ErrVerification    = errors.New("proof rejected")
)

// Error is returned by every coordinator workflow.
type Error struct {
	Kind     Kind
	Op       string
	RecordID string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.RecordID != "" {
		fmt.Fprintf(&b, " %s", e.RecordID)
	}
	fmt.Fprintf(&b, ": %s", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a coordinator error, or KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// classify maps a collaborator error onto the taxonomy. Sentinels win; message text is the
// fallback for collaborators that only report strings.
func classify(err error, fallback Kind) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrUserRejected):
		return KindUserRejected
	case errors.Is(err, ErrAlreadyVerified):
		return KindAlreadyVerified
	case errors.Is(err, ErrVerification):
		return KindVerificationFailure
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return KindNetworkFailure
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected"), strings.Contains(msg, "user denied"):
		return KindUserRejected
	case strings.Contains(msg, "already verified"):
		return KindAlreadyVerified
	}
	return fallback
}

func newError(kind Kind, op, recordID string, err error) *Error {
	return &Error{Kind: kind, Op: op, RecordID: recordID, Err: err}
}
