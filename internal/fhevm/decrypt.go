// decrypt.go - Gateway: KMS decryption, decryption proofs and the single submission.

package fhevm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
)

// ErrWrongContract is returned when a handle belongs to a different contract than the target.
var ErrWrongContract = errors.New("ciphertext not bound to target contract")

// CiphertextSource resolves handles to the ciphertexts stored on the ledger.
type CiphertextSource interface {
	CiphertextByHandle(ctx context.Context, handle string) (*Ciphertext, error)
}

// SubmitError wraps a failure of the submit callback, as opposed to a failure to decrypt or
// prove.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string { return "submit decryption proof: " + e.Err.Error() }

func (e *SubmitError) Unwrap() error { return e.Err }

// Gateway decrypts ciphertexts with the KMS key and submits clear values with proofs.
type Gateway struct {
	kms     *KMS
	keys    *Keys
	source  CiphertextSource
	observe ProofObserver
}

// NewGateway creates a gateway over the KMS key and a ciphertext source.
func NewGateway(kms *KMS, keys *Keys, source CiphertextSource) *Gateway {
	return &Gateway{kms: kms, keys: keys, source: source}
}

// WithObserver sets the proof timing observer.
func (g *Gateway) WithObserver(o ProofObserver) *Gateway {
	g.observe = o
	return g
}

// VerifyDecryption decrypts every handle, proves each clear value and calls submit once with
// the encoded values and the proof bundle. Values are returned only after submit succeeded.
func (g *Gateway) VerifyDecryption(ctx context.Context, handles []string, target string, submit coordinator.SubmitFunc) (map[string]uint64, error) {
	if len(handles) == 0 {
		return nil, errors.New("no handles to decrypt")
	}
	values := make([]uint64, len(handles))
	proofs := make([][]byte, len(handles))
	for i, h := range handles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ct, err := g.source.CiphertextByHandle(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("resolve handle %s: %w", h, err)
		}
		if ct.Contract != target {
			return nil, fmt.Errorf("%w: handle %s belongs to %s", ErrWrongContract, h, ct.Contract)
		}
		values[i], proofs[i], err = g.prove(ct)
		if err != nil {
			return nil, fmt.Errorf("decrypt handle %s: %w", h, err)
		}
	}

	if err := submit(ctx, EncodeClearValues(values), encodeBundle(proofs)); err != nil {
		return nil, &SubmitError{Err: err}
	}

	out := make(map[string]uint64, len(handles))
	for i, h := range handles {
		out[h] = values[i]
	}
	return out, nil
}

// prove opens ct and proves the opening.
func (g *Gateway) prove(ct *Ciphertext) (uint64, []byte, error) {
	amount, pad, err := g.kms.open(ct)
	if err != nil {
		return 0, nil, err
	}
	value, commit, binding, err := ct.elements()
	if err != nil {
		return 0, nil, err
	}
	assignment := &DecryptCircuit{
		Ciphertext: value.BigInt(new(big.Int)),
		MaskCommit: commit.BigInt(new(big.Int)),
		Binding:    binding.BigInt(new(big.Int)),
		Clear:      new(big.Int).SetUint64(amount),
		Mask:       pad.BigInt(new(big.Int)),
	}
	w, err := frontend.NewWitness(assignment, ecc.BLS12_377.ScalarField())
	if err != nil {
		return 0, nil, fmt.Errorf("witness creation failed: %w", err)
	}
	start := time.Now()
	proof, err := groth16.Prove(g.keys.DecryptCS, g.keys.DecryptPK, w)
	if err != nil {
		return 0, nil, fmt.Errorf("proof generation failed: %w", err)
	}
	if g.observe != nil {
		g.observe("decrypt", time.Since(start))
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return 0, nil, fmt.Errorf("proof marshaling failed: %w", err)
	}
	return amount, buf.Bytes(), nil
}
