package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
)

func TestRenderRecordsHidesUnverifiedAmounts(t *testing.T) {
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []coordinator.Record{
		coordinator.NewRecord(coordinator.LedgerRecord{ID: "sub-1", Name: "Netflix", StatusCode: 1, CategoryCode: 1, CreatedAt: created, IsVerified: true, DecryptedValue: 15}),
		coordinator.NewRecord(coordinator.LedgerRecord{ID: "sub-2", Name: "IDE", StatusCode: 0, CategoryCode: 2, CreatedAt: created, DecryptedValue: 99}),
	}
	var buf bytes.Buffer
	if err := renderRecords(&buf, records); err != nil {
		t.Fatalf("renderRecords failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"sub-1", "Netflix", "15", "streaming", "sub-2", hiddenAmount, "software", "2024-03-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "99") {
		t.Errorf("unverified amount leaked:\n%s", out)
	}
}

func TestRenderHistory(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := renderHistory(&buf, []coordinator.HistoryEntry{
		coordinator.NewCreateEntry("sub-1", "Netflix", at),
		coordinator.NewDecryptEntry("sub-1", 15, at),
	})
	if err != nil {
		t.Fatalf("renderHistory failed: %v", err)
	}
	if !strings.Contains(buf.String(), "value 15") || !strings.Contains(buf.String(), "Netflix") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestPromptApproval(t *testing.T) {
	var prompts bytes.Buffer
	approve := promptApproval(strings.NewReader("y\nno\n"), &prompts)
	ctx := context.Background()

	if !approve(ctx, "create", "sub-1") {
		t.Errorf("first answer was yes")
	}
	if approve(ctx, "decrypt", "sub-1") {
		t.Errorf("second answer was no")
	}
	if approve(ctx, "decrypt", "sub-2") {
		t.Errorf("end of input should decline")
	}
	if !strings.Contains(prompts.String(), "Sign decrypt transaction for sub-1?") {
		t.Errorf("unexpected prompts %q", prompts.String())
	}
}

type fakeBackend struct {
	backend
	result  coordinator.DecryptResult
	err     error
	records []coordinator.Record
}

func (f *fakeBackend) RequestDecryption(context.Context, string) (coordinator.DecryptResult, error) {
	return f.result, f.err
}

func (f *fakeBackend) Refresh(context.Context) ([]coordinator.Record, error) { return f.records, nil }

func TestDecryptCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("race reads the refreshed value", func(t *testing.T) {
		b := &fakeBackend{
			result:  coordinator.DecryptResult{Outcome: coordinator.OutcomeRaceResolved},
			records: []coordinator.Record{coordinator.NewRecord(coordinator.LedgerRecord{ID: "sub-1", IsVerified: true, DecryptedValue: 42})},
		}
		var out bytes.Buffer
		if err := cmdDecrypt(ctx, b, []string{"sub-1"}, &out); err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(out.String()) != "42" {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("declined signature is not an error", func(t *testing.T) {
		b := &fakeBackend{err: &coordinator.Error{Kind: coordinator.KindUserRejected, Op: "decrypt"}}
		if err := cmdDecrypt(ctx, b, []string{"sub-1"}, &bytes.Buffer{}); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("other failures surface", func(t *testing.T) {
		b := &fakeBackend{err: &coordinator.Error{Kind: coordinator.KindNetworkFailure, Op: "decrypt"}}
		if err := cmdDecrypt(ctx, b, []string{"sub-1"}, &bytes.Buffer{}); err == nil {
			t.Errorf("expected an error")
		}
	})

	if err := cmdDecrypt(ctx, &fakeBackend{}, nil, &bytes.Buffer{}); err == nil {
		t.Errorf("missing record id should be a usage error")
	}
}
