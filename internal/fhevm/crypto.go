// crypto.go - KMS key, Diffie-Hellman shared secret and MiMC masking.

package fhevm

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bls12-377/fr/mimc"
)

// ErrInvalidCiphertext is returned for malformed ciphertexts or pads that do not open to a
// 64-bit amount.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// KMS is the BLS12-377 keypair of the key-management actor.
// sk: scalar (private), Pk: G1Affine (public)
type KMS struct {
	sk fr.Element
	Pk bls12377.G1Affine
}

// GenerateKMS generates a random KMS keypair.
func GenerateKMS() (*KMS, error) {
	var sk fr.Element
	if _, err := sk.SetRandom(); err != nil {
		return nil, fmt.Errorf("kms key: %w", err)
	}
	return newKMS(sk), nil
}

func newKMS(sk fr.Element) *KMS {
	k := &KMS{sk: sk}
	k.Pk.ScalarMultiplicationBase(sk.BigInt(new(big.Int)))
	return k
}

// shared computes the Diffie-Hellman secret with an ephemeral public key.
func (k *KMS) shared(ephemeral *bls12377.G1Affine) bls12377.G1Affine {
	var s bls12377.G1Affine
	s.ScalarMultiplication(ephemeral, k.sk.BigInt(new(big.Int)))
	return s
}

// ephemeralShare draws r and returns (g^r, Pk^r).
func ephemeralShare(pk *bls12377.G1Affine) (eph, shared bls12377.G1Affine, err error) {
	var r fr.Element
	if _, err = r.SetRandom(); err != nil {
		return eph, shared, fmt.Errorf("ephemeral scalar: %w", err)
	}
	rb := r.BigInt(new(big.Int))
	eph.ScalarMultiplicationBase(rb)
	shared.ScalarMultiplication(pk, rb)
	return eph, shared, nil
}

// Binding ties a ciphertext to the contract that stores it and the account that created it.
func Binding(contract, caller string) fr.Element {
	h := sha256.New()
	h.Write([]byte(contract))
	h.Write([]byte{0})
	h.Write([]byte(caller))
	var b fr.Element
	b.SetBytes(h.Sum(nil))
	return b
}

// mask derives the one-time pad from the shared point and the binding.
func mask(shared *bls12377.G1Affine, binding fr.Element) fr.Element {
	// Coordinates live in the base field; reduce them into the scalar field.
	var x, y fr.Element
	xb := shared.X.Bytes()
	yb := shared.Y.Bytes()
	x.SetBytes(xb[:])
	y.SetBytes(yb[:])
	return mimcElements(x, y, binding)
}

// maskCommitment is the public commitment the circuits open the pad against.
func maskCommitment(m, binding fr.Element) fr.Element {
	return mimcElements(m, binding)
}

// mimcElements hashes field elements with native MiMC.
func mimcElements(elems ...fr.Element) fr.Element {
	h := mimcNative.NewMiMC()
	for i := range elems {
		// Marshal output is canonical, so Write cannot fail.
		h.Write(elems[i].Marshal())
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// seal masks amount under the binding and returns the ciphertext components.
func seal(pk *bls12377.G1Affine, binding fr.Element, amount uint64) (value, pad, commit fr.Element, eph bls12377.G1Affine, err error) {
	eph, shared, err := ephemeralShare(pk)
	if err != nil {
		return value, pad, commit, eph, err
	}
	pad = mask(&shared, binding)
	var a fr.Element
	a.SetUint64(amount)
	value.Add(&a, &pad)
	commit = maskCommitment(pad, binding)
	return value, pad, commit, eph, nil
}

// open recomputes the pad with the KMS key and recovers the amount.
func (k *KMS) open(ct *Ciphertext) (amount uint64, pad fr.Element, err error) {
	value, commit, binding, err := ct.elements()
	if err != nil {
		return 0, pad, err
	}
	var eph bls12377.G1Affine
	if _, err := eph.SetBytes(ct.Ephemeral); err != nil {
		return 0, pad, fmt.Errorf("%w: ephemeral key: %v", ErrInvalidCiphertext, err)
	}
	shared := k.shared(&eph)
	pad = mask(&shared, binding)
	if c := maskCommitment(pad, binding); !c.Equal(&commit) {
		return 0, pad, fmt.Errorf("%w: mask commitment mismatch", ErrInvalidCiphertext)
	}
	var plain fr.Element
	plain.Sub(&value, &pad)
	if !plain.IsUint64() {
		return 0, pad, fmt.Errorf("%w: amount out of range", ErrInvalidCiphertext)
	}
	return plain.Uint64(), pad, nil
}
