// client.go - Account-bound client for the record contract.

package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
	"github.com/abhaldrota/SubManage-FHE/internal/fhevm"
)

// ErrUserRejected is returned when the approval hook declines a signing request.
var ErrUserRejected = errors.New("user rejected transaction")

// ErrNoAccount is returned for signing calls without an account.
var ErrNoAccount = errors.New("no signing account")

// ApproveFunc is asked before every signing call. Returning false declines the signature.
type ApproveFunc func(ctx context.Context, op, recordID string) bool

// Client is a signing client bound to one account.
type Client struct {
	ledger  *Ledger
	account string
	approve ApproveFunc
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithApproval installs a signing approval hook.
func WithApproval(f ApproveFunc) ClientOption {
	return func(c *Client) { c.approve = f }
}

// NewClient creates a client for account. An empty account can only read.
func NewClient(l *Ledger, account string, opts ...ClientOption) *Client {
	c := &Client{ledger: l, account: account}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address is the contract address.
func (c *Client) Address() string { return c.ledger.Address() }

// Account is the signing account.
func (c *Client) Account() string { return c.account }

// RecordIDs enumerates record ids.
func (c *Client) RecordIDs(ctx context.Context) ([]string, error) {
	if err := c.call(ctx); err != nil {
		return nil, err
	}
	return c.ledger.IDs(), nil
}

// Record fetches one record as the coordinator sees it.
func (c *Client) Record(ctx context.Context, id string) (coordinator.LedgerRecord, error) {
	if err := c.call(ctx); err != nil {
		return coordinator.LedgerRecord{}, err
	}
	r, err := c.ledger.Get(id)
	if err != nil {
		return coordinator.LedgerRecord{}, mapErr(err)
	}
	return coordinator.LedgerRecord{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Creator:        r.Creator,
		CreatedAt:      r.CreatedAt,
		StatusCode:     r.StatusCode,
		CategoryCode:   r.CategoryCode,
		IsVerified:     r.IsVerified,
		DecryptedValue: r.DecryptedValue,
	}, nil
}

// CiphertextHandle returns the handle of a record's ciphertext.
func (c *Client) CiphertextHandle(ctx context.Context, id string) (string, error) {
	if err := c.call(ctx); err != nil {
		return "", err
	}
	h, err := c.ledger.Handle(id)
	return h, mapErr(err)
}

// CiphertextByHandle resolves a handle for the decryption gateway.
func (c *Client) CiphertextByHandle(ctx context.Context, handle string) (*fhevm.Ciphertext, error) {
	if err := c.call(ctx); err != nil {
		return nil, err
	}
	ct, err := c.ledger.CiphertextByHandle(handle)
	return ct, mapErr(err)
}

// CreateRecord signs and submits a create transaction.
func (c *Client) CreateRecord(ctx context.Context, tx coordinator.CreateTx) error {
	if err := c.sign(ctx, "create", tx.ID); err != nil {
		return err
	}
	return mapErr(c.ledger.Create(c.account, tx))
}

// SubmitDecryptionProof signs and submits a decryption proof.
func (c *Client) SubmitDecryptionProof(ctx context.Context, id string, clearValues, proof []byte) error {
	if err := c.sign(ctx, "decrypt", id); err != nil {
		return err
	}
	return mapErr(c.ledger.SubmitDecryption(id, clearValues, proof))
}

// IsAvailable probes the contract.
func (c *Client) IsAvailable(ctx context.Context) (bool, error) {
	if err := c.call(ctx); err != nil {
		return false, err
	}
	return c.ledger.IsAvailable(), nil
}

func (c *Client) call(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", coordinator.ErrNetwork, err)
	}
	return nil
}

func (c *Client) sign(ctx context.Context, op, id string) error {
	if err := c.call(ctx); err != nil {
		return err
	}
	if c.account == "" {
		return ErrNoAccount
	}
	if c.approve != nil && !c.approve(ctx, op, id) {
		return fmt.Errorf("%w: %w", coordinator.ErrUserRejected, ErrUserRejected)
	}
	return nil
}

// mapErr tags contract errors with the coordinator sentinels they correspond to.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAlreadyVerified):
		return fmt.Errorf("%w: %w", coordinator.ErrAlreadyVerified, err)
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %w", coordinator.ErrNotFound, err)
	case errors.Is(err, ErrUnavailable):
		return fmt.Errorf("%w: %w", coordinator.ErrNetwork, err)
	case errors.Is(err, fhevm.ErrInvalidProof), errors.Is(err, ErrBindingMismatch):
		return fmt.Errorf("%w: %w", coordinator.ErrVerification, err)
	}
	return err
}
