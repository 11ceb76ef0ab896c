// verify.go - Proof verification for the ledger side.

package fhevm

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
)

// ErrInvalidProof is returned when a proof does not verify against its public inputs.
var ErrInvalidProof = errors.New("invalid proof")

// Verifier checks input and decryption proofs with the verifying keys only.
type Verifier struct {
	inputVK   groth16.VerifyingKey
	decryptVK groth16.VerifyingKey
}

// NewVerifier creates a verifier from the two verifying keys.
func NewVerifier(inputVK, decryptVK groth16.VerifyingKey) *Verifier {
	return &Verifier{inputVK: inputVK, decryptVK: decryptVK}
}

// VerifyInput checks that ct carries a valid encryption proof.
func (v *Verifier) VerifyInput(ct *Ciphertext, proofBytes []byte) error {
	value, commit, binding, err := ct.elements()
	if err != nil {
		return err
	}
	return verify(v.inputVK, proofBytes, &InputCircuit{
		Ciphertext: value.BigInt(new(big.Int)),
		MaskCommit: commit.BigInt(new(big.Int)),
		Binding:    binding.BigInt(new(big.Int)),
	})
}

// VerifyDecryption checks a proof bundle for cts against encoded clear values and returns the
// decoded values in ciphertext order.
func (v *Verifier) VerifyDecryption(cts []*Ciphertext, clearValues, bundle []byte) ([]uint64, error) {
	values, err := DecodeClearValues(clearValues)
	if err != nil {
		return nil, err
	}
	proofs, err := decodeBundle(bundle)
	if err != nil {
		return nil, err
	}
	if len(values) != len(cts) || len(proofs) != len(cts) {
		return nil, fmt.Errorf("%w: %d ciphertexts, %d values, %d proofs", ErrInvalidProof, len(cts), len(values), len(proofs))
	}
	for i, ct := range cts {
		value, commit, binding, err := ct.elements()
		if err != nil {
			return nil, err
		}
		err = verify(v.decryptVK, proofs[i], &DecryptCircuit{
			Ciphertext: value.BigInt(new(big.Int)),
			MaskCommit: commit.BigInt(new(big.Int)),
			Binding:    binding.BigInt(new(big.Int)),
			Clear:      new(big.Int).SetUint64(values[i]),
		})
		if err != nil {
			return nil, err
		}
	}
	return values, nil
}

func verify(vk groth16.VerifyingKey, proofBytes []byte, public frontend.Circuit) error {
	w, err := frontend.NewWitness(public, ecc.BLS12_377.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}
	proof := groth16.NewProof(ecc.BLS12_377)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("%w: cannot unmarshal: %v", ErrInvalidProof, err)
	}
	if err := groth16.Verify(proof, vk, w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return nil
}
