package health

import (
	"context"
	"errors"
	"testing"
)

func TestCheckAggregatesComponents(t *testing.T) {
	hc := NewChecker("test")
	ledgerUp := true
	hc.Register("ledger", func(context.Context) error {
		if !ledgerUp {
			return errors.New("ledger unavailable")
		}
		return nil
	})
	hc.RegisterOptional("journal", func(context.Context) error { return errors.New("database is locked") })

	h := hc.Check(context.Background())
	if h.OverallStatus != Degraded {
		t.Fatalf("optional failure should degrade, got %s", h.OverallStatus)
	}
	if len(h.Components) != 2 || h.Components[0].Name != "journal" || h.Components[0].Message != "database is locked" {
		t.Errorf("unexpected components %+v", h.Components)
	}
	if r := NewResponse(h); r.Status != "warning" {
		t.Errorf("response status = %s", r.Status)
	}

	ledgerUp = false
	h = hc.Check(context.Background())
	if h.OverallStatus != Unhealthy {
		t.Errorf("required failure should be unhealthy, got %s", h.OverallStatus)
	}
	if last := hc.Last(); last.OverallStatus != Unhealthy {
		t.Errorf("Last should report the previous check, got %s", last.OverallStatus)
	}
	if r := NewResponse(h); r.Status != "error" || r.Message != "System is unhealthy" {
		t.Errorf("unexpected response %+v", r)
	}
}

func TestEmptyCheckerIsHealthy(t *testing.T) {
	h := NewChecker("v1").Check(context.Background())
	if h.OverallStatus != Healthy || h.Version != "v1" {
		t.Errorf("unexpected health %+v", h)
	}
}
