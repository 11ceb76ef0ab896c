// codec.go - Wire formats: ciphertexts, handles, clear values and proof bundles.

package fhevm

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
)

// ClearValueSize is the encoded size of one clear value.
const ClearValueSize = fr.Bytes

// Ciphertext is a masked amount bound to a contract and caller.
type Ciphertext struct {
	Value      []byte `json:"value"`
	MaskCommit []byte `json:"mask_commit"`
	Binding    []byte `json:"binding"`
	Contract   string `json:"contract"`
	Ephemeral  []byte `json:"ephemeral"`
}

// ParseCiphertext decodes and validates a serialized ciphertext.
func ParseCiphertext(data []byte) (*Ciphertext, error) {
	var ct Ciphertext
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if _, _, _, err := ct.elements(); err != nil {
		return nil, err
	}
	if len(ct.Ephemeral) != bls12377.SizeOfG1AffineCompressed {
		return nil, fmt.Errorf("%w: ephemeral key length %d", ErrInvalidCiphertext, len(ct.Ephemeral))
	}
	return &ct, nil
}

// Bytes serializes the ciphertext.
func (ct *Ciphertext) Bytes() ([]byte, error) {
	return json.Marshal(ct)
}

// Handle is the public identifier the ledger exposes for a ciphertext.
func (ct *Ciphertext) Handle() string {
	value, commit, _, err := ct.elements()
	if err != nil {
		return ""
	}
	h := mimcElements(value, commit)
	b := h.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

func (ct *Ciphertext) elements() (value, commit, binding fr.Element, err error) {
	if err = value.SetBytesCanonical(ct.Value); err != nil {
		return value, commit, binding, fmt.Errorf("%w: value: %v", ErrInvalidCiphertext, err)
	}
	if err = commit.SetBytesCanonical(ct.MaskCommit); err != nil {
		return value, commit, binding, fmt.Errorf("%w: mask commitment: %v", ErrInvalidCiphertext, err)
	}
	if err = binding.SetBytesCanonical(ct.Binding); err != nil {
		return value, commit, binding, fmt.Errorf("%w: binding: %v", ErrInvalidCiphertext, err)
	}
	return value, commit, binding, nil
}

// BoundTo reports whether the ciphertext was created for contract by caller.
func (ct *Ciphertext) BoundTo(contract, caller string) bool {
	b := Binding(contract, caller)
	return ct.Contract == contract && bytes.Equal(ct.Binding, b.Marshal())
}

// EncodeClearValues encodes values as consecutive 32-byte big-endian words.
func EncodeClearValues(values []uint64) []byte {
	out := make([]byte, 0, len(values)*ClearValueSize)
	for _, v := range values {
		var w [ClearValueSize]byte
		binary.BigEndian.PutUint64(w[ClearValueSize-8:], v)
		out = append(out, w[:]...)
	}
	return out
}

// DecodeClearValues is the inverse of EncodeClearValues.
func DecodeClearValues(data []byte) ([]uint64, error) {
	if len(data)%ClearValueSize != 0 {
		return nil, fmt.Errorf("clear values: length %d is not a multiple of %d", len(data), ClearValueSize)
	}
	out := make([]uint64, 0, len(data)/ClearValueSize)
	for off := 0; off < len(data); off += ClearValueSize {
		w := data[off : off+ClearValueSize]
		for _, b := range w[:ClearValueSize-8] {
			if b != 0 {
				return nil, fmt.Errorf("clear values: word %d exceeds 64 bits", off/ClearValueSize)
			}
		}
		out = append(out, binary.BigEndian.Uint64(w[ClearValueSize-8:]))
	}
	return out, nil
}

// encodeBundle length-prefixes each proof.
func encodeBundle(proofs [][]byte) []byte {
	var buf bytes.Buffer
	for _, p := range proofs {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		buf.Write(n[:])
		buf.Write(p)
	}
	return buf.Bytes()
}

// decodeBundle splits a proof bundle produced by encodeBundle.
func decodeBundle(data []byte) ([][]byte, error) {
	r := bytes.NewReader(data)
	var out [][]byte
	for r.Len() > 0 {
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("proof bundle: %w", err)
		}
		if int(n) > r.Len() {
			return nil, fmt.Errorf("proof bundle: proof of %d bytes truncated", n)
		}
		p := make([]byte, n)
		if _, err := io.ReadFull(r, p); err != nil {
			return nil, fmt.Errorf("proof bundle: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}
