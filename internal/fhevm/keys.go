// keys.go - Circuit compilation, Groth16 key persistence and KMS key storage.

package fhevm

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Key file names inside the key directory.
const (
	InputProvingKeyFile     = "input_proving.key"
	InputVerifyingKeyFile   = "input_verifying.key"
	DecryptProvingKeyFile   = "decrypt_proving.key"
	DecryptVerifyingKeyFile = "decrypt_verifying.key"
	KMSKeyFile              = "kms.key"
)

// Keys holds both compiled circuits with their Groth16 keys.
type Keys struct {
	InputCS   constraint.ConstraintSystem
	InputPK   groth16.ProvingKey
	InputVK   groth16.VerifyingKey
	DecryptCS constraint.ConstraintSystem
	DecryptPK groth16.ProvingKey
	DecryptVK groth16.VerifyingKey
}

// SetupOrLoadKeys compiles both circuits and loads their keys from dir, generating and saving
// new keys for any circuit whose keys are missing.
func SetupOrLoadKeys(dir string) (*Keys, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("key directory: %w", err)
	}
	var k Keys
	var err error
	k.InputCS, k.InputPK, k.InputVK, err = setupCircuit(&InputCircuit{},
		filepath.Join(dir, InputProvingKeyFile), filepath.Join(dir, InputVerifyingKeyFile))
	if err != nil {
		return nil, fmt.Errorf("input circuit: %w", err)
	}
	k.DecryptCS, k.DecryptPK, k.DecryptVK, err = setupCircuit(&DecryptCircuit{},
		filepath.Join(dir, DecryptProvingKeyFile), filepath.Join(dir, DecryptVerifyingKeyFile))
	if err != nil {
		return nil, fmt.Errorf("decrypt circuit: %w", err)
	}
	return &k, nil
}

func setupCircuit(circuit frontend.Circuit, pkPath, vkPath string) (constraint.ConstraintSystem, groth16.ProvingKey, groth16.VerifyingKey, error) {
	ccs, err := frontend.Compile(ecc.BLS12_377.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return ccs, pk, vk, nil
	}
	pk, vk, err = groth16.Setup(ccs)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, nil, nil, err
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, nil, err
	}
	return ccs, pk, vk, nil
}

// LoadVerifyingKeys loads only the verifying keys, as the ledger needs.
func LoadVerifyingKeys(dir string) (input, decrypt groth16.VerifyingKey, err error) {
	input, err = LoadVerifyingKey(filepath.Join(dir, InputVerifyingKeyFile))
	if err != nil {
		return nil, nil, fmt.Errorf("input verifying key: %w", err)
	}
	decrypt, err = LoadVerifyingKey(filepath.Join(dir, DecryptVerifyingKeyFile))
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt verifying key: %w", err)
	}
	return input, decrypt, nil
}

// SaveProvingKey saves a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

// SaveVerifyingKey saves a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

// LoadProvingKey loads a Groth16 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BLS12_377)
	_, err = pk.ReadFrom(f)
	return pk, err
}

// LoadVerifyingKey loads a Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BLS12_377)
	_, err = vk.ReadFrom(f)
	return vk, err
}

// SaveKMS writes the KMS private scalar as hex.
func SaveKMS(path string, k *KMS) error {
	b := k.sk.Bytes()
	return os.WriteFile(path, []byte(hex.EncodeToString(b[:])+"\n"), 0o600)
}

// LoadKMS reads a KMS key written by SaveKMS.
func LoadKMS(path string) (*KMS, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("kms key %s: %w", path, err)
	}
	var sk fr.Element
	if err := sk.SetBytesCanonical(raw); err != nil {
		return nil, fmt.Errorf("kms key %s: %w", path, err)
	}
	if sk.IsZero() {
		return nil, fmt.Errorf("kms key %s: zero scalar", path)
	}
	return newKMS(sk), nil
}

// LoadOrGenerateKMS loads the KMS key at path or creates one if the file does not exist.
func LoadOrGenerateKMS(path string) (*KMS, error) {
	k, err := LoadKMS(path)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	k, err = GenerateKMS()
	if err != nil {
		return nil, err
	}
	if err := SaveKMS(path, k); err != nil {
		return nil, err
	}
	return k, nil
}
