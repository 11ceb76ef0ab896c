package fhevm

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// InputCircuit proves that Ciphertext masks a 64-bit amount with the pad committed in
// MaskCommit under Binding.
type InputCircuit struct {
	// Public inputs
	Ciphertext frontend.Variable `gnark:",public"`
	MaskCommit frontend.Variable `gnark:",public"`
	Binding    frontend.Variable `gnark:",public"`

	// Private inputs
	Amount frontend.Variable
	Mask   frontend.Variable
}

func (c *InputCircuit) Define(api frontend.API) error {
	api.ToBinary(c.Amount, 64)
	api.AssertIsEqual(c.Ciphertext, api.Add(c.Amount, c.Mask))
	return assertMaskCommit(api, c.Mask, c.Binding, c.MaskCommit)
}

// DecryptCircuit proves that Clear is the opening of Ciphertext.
type DecryptCircuit struct {
	// Public inputs
	Ciphertext frontend.Variable `gnark:",public"`
	MaskCommit frontend.Variable `gnark:",public"`
	Binding    frontend.Variable `gnark:",public"`
	Clear      frontend.Variable `gnark:",public"`

	// Private inputs
	Mask frontend.Variable
}

func (c *DecryptCircuit) Define(api frontend.API) error {
	api.ToBinary(c.Clear, 64)
	api.AssertIsEqual(c.Ciphertext, api.Add(c.Clear, c.Mask))
	return assertMaskCommit(api, c.Mask, c.Binding, c.MaskCommit)
}

// assertMaskCommit constrains commit == MiMC(mask, binding).
func assertMaskCommit(api frontend.API, mask, binding, commit frontend.Variable) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(mask, binding)
	api.AssertIsEqual(commit, h.Sum())
	return nil
}
