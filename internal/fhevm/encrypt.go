// encrypt.go - Encryption service: mask the amount and prove the ciphertext well formed.

package fhevm

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
)

// Encryptor encrypts amounts to the KMS public key.
type Encryptor struct {
	kmsPub  bls12377.G1Affine
	keys    *Keys
	observe ProofObserver
}

// ProofObserver is told how long each Groth16 proof took. op is "input" or "decrypt".
type ProofObserver func(op string, d time.Duration)

// NewEncryptor creates an encryptor for the given KMS public key.
func NewEncryptor(kmsPub bls12377.G1Affine, keys *Keys) *Encryptor {
	return &Encryptor{kmsPub: kmsPub, keys: keys}
}

// WithObserver sets the proof timing observer.
func (e *Encryptor) WithObserver(o ProofObserver) *Encryptor {
	e.observe = o
	return e
}

// Encrypt masks amount for (target, caller) and proves the ciphertext encrypts a 64-bit value.
func (e *Encryptor) Encrypt(ctx context.Context, target, caller string, amount uint64) (coordinator.EncryptedInput, error) {
	if err := ctx.Err(); err != nil {
		return coordinator.EncryptedInput{}, err
	}
	binding := Binding(target, caller)
	value, pad, commit, eph, err := seal(&e.kmsPub, binding, amount)
	if err != nil {
		return coordinator.EncryptedInput{}, err
	}

	assignment := &InputCircuit{
		Ciphertext: value.BigInt(new(big.Int)),
		MaskCommit: commit.BigInt(new(big.Int)),
		Binding:    binding.BigInt(new(big.Int)),
		Amount:     new(big.Int).SetUint64(amount),
		Mask:       pad.BigInt(new(big.Int)),
	}
	w, err := frontend.NewWitness(assignment, ecc.BLS12_377.ScalarField())
	if err != nil {
		return coordinator.EncryptedInput{}, fmt.Errorf("witness creation failed: %w", err)
	}
	start := time.Now()
	proof, err := groth16.Prove(e.keys.InputCS, e.keys.InputPK, w)
	if err != nil {
		return coordinator.EncryptedInput{}, fmt.Errorf("proof generation failed: %w", err)
	}
	if e.observe != nil {
		e.observe("input", time.Since(start))
	}
	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return coordinator.EncryptedInput{}, fmt.Errorf("proof marshaling failed: %w", err)
	}

	eb := eph.Bytes()
	ct := &Ciphertext{
		Value:      value.Marshal(),
		MaskCommit: commit.Marshal(),
		Binding:    binding.Marshal(),
		Contract:   target,
		Ephemeral:  eb[:],
	}
	data, err := ct.Bytes()
	if err != nil {
		return coordinator.EncryptedInput{}, err
	}
	return coordinator.EncryptedInput{Ciphertext: data, Proof: proofBuf.Bytes()}, nil
}
