package fhevm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
)

const (
	testContract = "0xledger"
	testCaller   = "0xalice"
)

var (
	setupOnce sync.Once
	testKeys  *Keys
	testKMS   *KMS
	setupErr  error
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "fhevm-keys")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	setupOnce.Do(func() {
		testKeys, setupErr = SetupOrLoadKeys(dir)
		if setupErr == nil {
			testKMS, setupErr = LoadOrGenerateKMS(filepath.Join(dir, KMSKeyFile))
		}
	})
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func fixtures(t *testing.T) (*Keys, *KMS) {
	t.Helper()
	if setupErr != nil {
		t.Fatalf("key setup failed: %v", setupErr)
	}
	return testKeys, testKMS
}

// memSource resolves handles from an in-memory map.
type memSource map[string]*Ciphertext

func (m memSource) CiphertextByHandle(ctx context.Context, handle string) (*Ciphertext, error) {
	ct, ok := m[handle]
	if !ok {
		return nil, coordinator.ErrNotFound
	}
	return ct, nil
}

func encryptFixture(t *testing.T, amount uint64) (*Ciphertext, []byte) {
	t.Helper()
	keys, kms := fixtures(t)
	in, err := NewEncryptor(kms.Pk, keys).Encrypt(context.Background(), testContract, testCaller, amount)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	ct, err := ParseCiphertext(in.Ciphertext)
	if err != nil {
		t.Fatalf("ParseCiphertext failed: %v", err)
	}
	return ct, in.Proof
}

func TestEncryptDecryptEndToEnd(t *testing.T) {
	keys, kms := fixtures(t)
	verifier := NewVerifier(keys.InputVK, keys.DecryptVK)

	// Step 1: Encrypt and check the input proof as the ledger would
	ct, proof := encryptFixture(t, 15)
	if err := verifier.VerifyInput(ct, proof); err != nil {
		t.Fatalf("VerifyInput failed: %v", err)
	}
	if !ct.BoundTo(testContract, testCaller) {
		t.Errorf("ciphertext should be bound to its contract and caller")
	}

	// Step 2: Decrypt through the gateway, verifying in the submit callback
	handle := ct.Handle()
	var observed []string
	gw := NewGateway(kms, keys, memSource{handle: ct}).WithObserver(func(op string, d time.Duration) {
		observed = append(observed, op)
	})
	submits := 0
	var onLedger []uint64
	values, err := gw.VerifyDecryption(context.Background(), []string{handle}, testContract,
		func(ctx context.Context, clearValues, bundle []byte) error {
			submits++
			var err error
			onLedger, err = verifier.VerifyDecryption([]*Ciphertext{ct}, clearValues, bundle)
			return err
		})
	if err != nil {
		t.Fatalf("VerifyDecryption failed: %v", err)
	}
	if submits != 1 {
		t.Errorf("submit called %d times", submits)
	}
	if values[handle] != 15 {
		t.Errorf("clear value = %d, want 15", values[handle])
	}
	if len(onLedger) != 1 || onLedger[0] != 15 {
		t.Errorf("ledger-side values = %v", onLedger)
	}
	if len(observed) != 1 || observed[0] != "decrypt" {
		t.Errorf("observer saw %v", observed)
	}
}

func TestTamperedCiphertextFailsInputProof(t *testing.T) {
	keys, _ := fixtures(t)
	ct, proof := encryptFixture(t, 7)
	other, _ := encryptFixture(t, 7)

	tampered := *ct
	tampered.Value = other.Value
	err := NewVerifier(keys.InputVK, keys.DecryptVK).VerifyInput(&tampered, proof)
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof, got %v", err)
	}
}

func TestWrongClearValueFailsDecryptionProof(t *testing.T) {
	keys, kms := fixtures(t)
	ct, _ := encryptFixture(t, 42)
	gw := NewGateway(kms, keys, memSource{ct.Handle(): ct})

	var bundle []byte
	_, err := gw.VerifyDecryption(context.Background(), []string{ct.Handle()}, testContract,
		func(ctx context.Context, clearValues, proof []byte) error {
			bundle = proof
			return nil
		})
	if err != nil {
		t.Fatalf("VerifyDecryption failed: %v", err)
	}

	_, err = NewVerifier(keys.InputVK, keys.DecryptVK).VerifyDecryption([]*Ciphertext{ct}, EncodeClearValues([]uint64{43}), bundle)
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof, got %v", err)
	}
}

func TestGatewayErrors(t *testing.T) {
	keys, kms := fixtures(t)
	ct, _ := encryptFixture(t, 3)
	handle := ct.Handle()

	t.Run("wrong contract", func(t *testing.T) {
		gw := NewGateway(kms, keys, memSource{handle: ct})
		called := false
		_, err := gw.VerifyDecryption(context.Background(), []string{handle}, "0xother",
			func(context.Context, []byte, []byte) error { called = true; return nil })
		if !errors.Is(err, ErrWrongContract) {
			t.Fatalf("expected ErrWrongContract, got %v", err)
		}
		if called {
			t.Errorf("submit must not run for a foreign handle")
		}
	})

	t.Run("submit failure is wrapped", func(t *testing.T) {
		gw := NewGateway(kms, keys, memSource{handle: ct})
		_, err := gw.VerifyDecryption(context.Background(), []string{handle}, testContract,
			func(context.Context, []byte, []byte) error { return coordinator.ErrAlreadyVerified })
		var se *SubmitError
		if !errors.As(err, &se) {
			t.Fatalf("expected *SubmitError, got %v", err)
		}
		if !errors.Is(err, coordinator.ErrAlreadyVerified) {
			t.Errorf("submit cause should be preserved")
		}
	})

	t.Run("foreign KMS cannot open", func(t *testing.T) {
		other, err := GenerateKMS()
		if err != nil {
			t.Fatalf("GenerateKMS failed: %v", err)
		}
		gw := NewGateway(other, keys, memSource{handle: ct})
		_, err = gw.VerifyDecryption(context.Background(), []string{handle}, testContract,
			func(context.Context, []byte, []byte) error { return nil })
		if !errors.Is(err, ErrInvalidCiphertext) {
			t.Fatalf("expected ErrInvalidCiphertext, got %v", err)
		}
	})
}

func TestHandleIsStable(t *testing.T) {
	ct, _ := encryptFixture(t, 1)
	data, err := ct.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	again, err := ParseCiphertext(data)
	if err != nil {
		t.Fatalf("ParseCiphertext failed: %v", err)
	}
	if ct.Handle() == "" || ct.Handle() != again.Handle() {
		t.Errorf("handle changed across serialization: %s vs %s", ct.Handle(), again.Handle())
	}
	if _, err := ParseCiphertext([]byte(`{"value":"AA=="}`)); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("expected ErrInvalidCiphertext for a short value, got %v", err)
	}
}

func TestClearValueEncoding(t *testing.T) {
	enc := EncodeClearValues([]uint64{0, 15, 1<<64 - 1})
	if len(enc) != 3*ClearValueSize {
		t.Fatalf("encoded length = %d", len(enc))
	}
	got, err := DecodeClearValues(enc)
	if err != nil {
		t.Fatalf("DecodeClearValues failed: %v", err)
	}
	if got[0] != 0 || got[1] != 15 || got[2] != 1<<64-1 {
		t.Errorf("decoded %v", got)
	}

	wide := make([]byte, ClearValueSize)
	wide[0] = 1
	if _, err := DecodeClearValues(wide); err == nil {
		t.Errorf("expected an error for a value wider than 64 bits")
	}
	if _, err := DecodeClearValues(make([]byte, 5)); err == nil {
		t.Errorf("expected an error for a partial word")
	}
}

func TestProofBundle(t *testing.T) {
	in := [][]byte{[]byte("a"), {}, []byte("proof-three")}
	out, err := decodeBundle(encodeBundle(in))
	if err != nil {
		t.Fatalf("decodeBundle failed: %v", err)
	}
	if len(out) != 3 || string(out[0]) != "a" || len(out[1]) != 0 || string(out[2]) != "proof-three" {
		t.Errorf("unexpected bundle %q", out)
	}
	if _, err := decodeBundle([]byte{0, 0, 0, 9, 'x'}); err == nil {
		t.Errorf("expected truncation error")
	}
}

func TestKMSPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), KMSKeyFile)
	k, err := LoadOrGenerateKMS(path)
	if err != nil {
		t.Fatalf("LoadOrGenerateKMS failed: %v", err)
	}
	again, err := LoadOrGenerateKMS(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !k.Pk.Equal(&again.Pk) {
		t.Errorf("reloaded KMS has a different public key")
	}
	if err := os.WriteFile(path, []byte("zz"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrGenerateKMS(path); err == nil {
		t.Errorf("expected an error for a corrupt key file")
	}
}
