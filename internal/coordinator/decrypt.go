// decrypt.go - Decrypt/verify state machine with per-record request dedup.
//
// Unverified -> AwaitingProof -> Verified. The authoritative ledger check always runs before
// any cryptographic work, so a retried or raced request never decrypts twice.

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome describes how a decrypt request completed.
type Outcome string

const (
	// OutcomeDecrypted means this request decrypted and verified the value.
	OutcomeDecrypted Outcome = "decrypted"
	// OutcomeAlreadyVerified means the ledger already held the verified value.
	OutcomeAlreadyVerified Outcome = "already_verified"
	// OutcomeRaceResolved means a concurrent actor verified the record during submission.
	// No value is returned; callers re-read it from the refreshed cache.
	OutcomeRaceResolved Outcome = "race_resolved"
)

// DecryptResult is the result of RequestDecryption.
type DecryptResult struct {
	Value    uint64  `json:"value"`
	HasValue bool    `json:"has_value"`
	Outcome  Outcome `json:"outcome"`
	// Shared is set when the result came from a request another caller started.
	Shared bool `json:"shared"`
}

var errDuplicateSubmit = errors.New("decryption proof already submitted for this request")

// RequestDecryption returns the verified amount of a record, decrypting it first if needed.
// Concurrent requests for the same id join the outstanding one.
func (c *Coordinator) RequestDecryption(ctx context.Context, id string) (DecryptResult, error) {
	if id == "" {
		return DecryptResult{}, c.fail("decrypt", "", KindInvalidInput, errors.New("record id is required"), "Decryption failed")
	}

	c.flightMu.Lock()
	c.inflight[id]++
	c.flightMu.Unlock()
	defer func() {
		c.flightMu.Lock()
		if c.inflight[id]--; c.inflight[id] <= 0 {
			delete(c.inflight, id)
		}
		c.flightMu.Unlock()
	}()

	// The flight must outlive a joined caller that gives up.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(id, func() (interface{}, error) {
		return c.decrypt(flightCtx, id)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return DecryptResult{}, res.Err
		}
		out := res.Val.(DecryptResult)
		out.Shared = res.Shared
		return out, nil
	case <-ctx.Done():
		return DecryptResult{}, c.fail("decrypt", id, KindNetworkFailure, ctx.Err(), "Decryption timed out")
	}
}

// Phase reports the decrypt state of a record as seen by this coordinator.
func (c *Coordinator) Phase(id string) Phase {
	c.flightMu.Lock()
	_, busy := c.inflight[id]
	c.flightMu.Unlock()
	if r, ok := c.Lookup(id); ok && r.Verified {
		return PhaseVerified
	}
	if busy {
		return PhaseAwaitingProof
	}
	return PhaseUnverified
}

func (c *Coordinator) decrypt(ctx context.Context, id string) (DecryptResult, error) {
	const op = "decrypt"
	start := time.Now()
	c.emit(EventPending, "Checking verification state...", op, id)

	lr, err := c.ledger.Record(ctx, id)
	if err != nil {
		return DecryptResult{}, c.fail(op, id, classify(err, KindNetworkFailure), err, "Decryption failed")
	}
	if lr.IsVerified {
		c.metrics.RecordDecrypt(string(OutcomeAlreadyVerified), time.Since(start))
		c.emit(EventSuccess, "Data verified on-chain", op, id)
		return DecryptResult{Value: lr.DecryptedValue, HasValue: true, Outcome: OutcomeAlreadyVerified}, nil
	}

	if c.ledger.Account() == "" {
		return DecryptResult{}, c.fail(op, id, KindUnauthenticated, errors.New("no signing account"), "Please connect wallet first")
	}

	handle, err := c.ledger.CiphertextHandle(ctx, id)
	if err != nil {
		return DecryptResult{}, c.fail(op, id, classify(err, KindNetworkFailure), err, "Decryption failed")
	}

	c.emit(EventPending, "Verifying decryption...", op, id)

	var (
		submitted bool
		submitErr error
	)
	submit := func(ctx context.Context, clearValues, proof []byte) error {
		if submitted {
			return errDuplicateSubmit
		}
		submitted = true
		submitErr = c.ledger.SubmitDecryptionProof(ctx, id, clearValues, proof)
		return submitErr
	}

	values, err := c.decryptor.VerifyDecryption(ctx, []string{handle}, c.ledger.Address(), submit)
	if err != nil {
		if submitErr != nil {
			kind := classify(submitErr, KindNetworkFailure)
			if kind == KindAlreadyVerified {
				return c.resolveRace(ctx, id, start), nil
			}
			msg := "Decryption failed"
			if kind == KindUserRejected {
				msg = "Transaction rejected"
			}
			return DecryptResult{}, c.fail(op, id, kind, submitErr, msg)
		}
		if classify(err, KindVerificationFailure) == KindAlreadyVerified {
			return c.resolveRace(ctx, id, start), nil
		}
		return DecryptResult{}, c.fail(op, id, KindVerificationFailure, err, "Decryption failed")
	}
	if !submitted {
		return DecryptResult{}, c.fail(op, id, KindVerificationFailure,
			errors.New("decryption service returned without submitting a proof"), "Decryption failed")
	}

	value, ok := values[handle]
	if !ok {
		return DecryptResult{}, c.fail(op, id, KindVerificationFailure,
			fmt.Errorf("no clear value for handle %s", handle), "Decryption failed")
	}

	c.appendHistory(ctx, NewDecryptEntry(id, value, c.now()))
	if _, err := c.reconcile(ctx); err != nil {
		c.log.Warn("decrypt %s: verified but reconcile failed: %v", id, err)
	}

	c.metrics.RecordDecrypt(string(OutcomeDecrypted), time.Since(start))
	c.log.Info("decrypted record %s", id)
	c.emit(EventSuccess, "Data decrypted and verified", op, id)
	return DecryptResult{Value: value, HasValue: true, Outcome: OutcomeDecrypted}, nil
}

// resolveRace handles a record verified by a concurrent actor during submission.
func (c *Coordinator) resolveRace(ctx context.Context, id string, start time.Time) DecryptResult {
	c.log.Info("decrypt %s: already verified by another actor", id)
	if _, err := c.reconcile(ctx); err != nil {
		c.log.Warn("decrypt %s: reconcile after race failed: %v", id, err)
	}
	c.metrics.RecordDecrypt(string(OutcomeRaceResolved), time.Since(start))
	c.emit(EventSuccess, "Data already verified", "decrypt", id)
	return DecryptResult{Outcome: OutcomeRaceResolved}
}
