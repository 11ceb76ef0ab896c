// create.go - Create workflow: encrypt, submit, record history, reconcile.

package coordinator

import (
	"context"
	"errors"
	"strings"
	"time"
)

// CreateRequest is the caller input for a new record.
type CreateRequest struct {
	Name        string `json:"name"`
	Amount      uint64 `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Create encrypts the amount, submits the record to the ledger and reconciles.
// It returns the new record identifier. Nothing is written if encryption or submission fails.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (string, error) {
	const op = "create"
	start := time.Now()

	caller := c.ledger.Account()
	if caller == "" {
		return "", c.fail(op, "", KindUnauthenticated, errors.New("no signing account"), "Please connect wallet first")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", c.fail(op, "", KindInvalidInput, errors.New("name is required"), "Creation failed: name is required")
	}

	id := c.newID()
	c.emit(EventPending, "Creating subscription with encryption...", op, id)

	enc, err := c.encryptor.Encrypt(ctx, c.ledger.Address(), caller, req.Amount)
	if err != nil {
		return "", c.fail(op, id, KindEncryptionFailure, err, "Creation failed: "+err.Error())
	}

	c.emit(EventPending, "Submitting encrypted subscription...", op, id)
	err = c.ledger.CreateRecord(ctx, CreateTx{
		ID:           id,
		Name:         name,
		Ciphertext:   enc.Ciphertext,
		Proof:        enc.Proof,
		StatusCode:   StatusCodeActive,
		CategoryCode: CategoryCode(req.Category),
		Description:  req.Description,
	})
	if err != nil {
		kind := classify(err, KindNetworkFailure)
		msg := "Creation failed: " + err.Error()
		if kind == KindUserRejected {
			msg = "Transaction rejected"
		}
		return "", c.fail(op, id, kind, err, msg)
	}

	c.appendHistory(ctx, NewCreateEntry(id, name, c.now()))
	if _, err := c.reconcile(ctx); err != nil {
		c.log.Warn("create %s: confirmed but reconcile failed: %v", id, err)
	}

	c.metrics.RecordCreate(time.Since(start))
	c.log.Info("created record %s (%s)", id, name)
	c.emit(EventSuccess, "Subscription created with encryption", op, id)
	return id, nil
}

// fail records, logs and reports a workflow failure and returns it as an *Error.
func (c *Coordinator) fail(op, recordID string, kind Kind, err error, message string) error {
	c.metrics.RecordError(kind.String())
	if kind == KindUserRejected {
		c.log.Info("%s %s: %v", op, recordID, err)
	} else {
		c.log.Error("%s %s: %s: %v", op, recordID, kind, err)
	}
	c.emit(EventError, message, op, recordID)
	return newError(kind, op, recordID, err)
}
