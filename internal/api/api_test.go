package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
	"github.com/abhaldrota/SubManage-FHE/internal/health"
	"github.com/abhaldrota/SubManage-FHE/internal/metrics"
)

type fakeService struct {
	records    []coordinator.Record
	createErr  error
	decryptErr error
	created    []coordinator.CreateRequest
	history    []coordinator.HistoryEntry
	lastLimit  int
	available  bool
}

func (f *fakeService) Records() []coordinator.Record { return f.records }

func (f *fakeService) Filter(query, category string) []coordinator.Record {
	var out []coordinator.Record
	for _, r := range f.records {
		if category != "all" && string(r.Category) != category {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(query)) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (f *fakeService) ListAll(context.Context) ([]coordinator.Record, error) { return f.records, nil }

func (f *fakeService) Create(_ context.Context, req coordinator.CreateRequest) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, req)
	id := fmt.Sprintf("sub-%d", len(f.created))
	f.records = append(f.records, coordinator.NewRecord(coordinator.LedgerRecord{ID: id, Name: req.Name, StatusCode: 1}))
	return id, nil
}

func (f *fakeService) RequestDecryption(_ context.Context, id string) (coordinator.DecryptResult, error) {
	if f.decryptErr != nil {
		return coordinator.DecryptResult{}, f.decryptErr
	}
	return coordinator.DecryptResult{Value: 15, HasValue: true, Outcome: coordinator.OutcomeDecrypted}, nil
}

func (f *fakeService) Phase(string) coordinator.Phase { return coordinator.PhaseUnverified }

func (f *fakeService) Stats() coordinator.Stats { return coordinator.ComputeStats(f.records) }

func (f *fakeService) History(n int) []coordinator.HistoryEntry {
	f.lastLimit = n
	return f.history
}

func (f *fakeService) CheckAvailability(context.Context) (bool, error) { return f.available, nil }

type denyAfter struct{ n int }

func (d *denyAfter) Allow(string) bool {
	d.n--
	return d.n >= 0
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body == "" {
		rdr = bytes.NewReader(nil)
	} else {
		rdr = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndList(t *testing.T) {
	svc := &fakeService{}
	h := NewServer(svc, Options{}).Routes()

	rec := do(t, h, http.MethodPost, "/records", `{"name":"Netflix","amount":15,"category":"streaming"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body)
	}
	var created struct {
		ID     string         `json:"id"`
		Record map[string]any `json:"record"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ID != "sub-1" || created.Record == nil {
		t.Errorf("unexpected create response %+v", created)
	}
	if len(svc.created) != 1 || svc.created[0].Amount != 15 {
		t.Errorf("unexpected create request %+v", svc.created)
	}

	rec = do(t, h, http.MethodGet, "/records?q=net", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Netflix") {
		t.Errorf("list: status %d body %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/records", `{"name":"x","price":3}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown fields should be rejected, got %d", rec.Code)
	}
}

func TestWorkflowErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rejected", &coordinator.Error{Kind: coordinator.KindUserRejected, Op: "decrypt"}, http.StatusForbidden},
		{"unauthenticated", &coordinator.Error{Kind: coordinator.KindUnauthenticated, Op: "decrypt"}, http.StatusUnauthorized},
		{"not found", &coordinator.Error{Kind: coordinator.KindNetworkFailure, Op: "decrypt", Err: coordinator.ErrNotFound}, http.StatusNotFound},
		{"network", &coordinator.Error{Kind: coordinator.KindNetworkFailure, Op: "decrypt"}, http.StatusBadGateway},
		{"verification", &coordinator.Error{Kind: coordinator.KindVerificationFailure, Op: "decrypt"}, http.StatusUnprocessableEntity},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewServer(&fakeService{decryptErr: tt.err}, Options{}).Routes()
			rec := do(t, h, http.MethodPost, "/records/sub-1/decrypt", "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestDecryptIsRateLimited(t *testing.T) {
	mc := metrics.NewCollector()
	h := NewServer(&fakeService{}, Options{Account: "0xalice", Limiter: &denyAfter{n: 1}, Metrics: mc}).Routes()

	if rec := do(t, h, http.MethodPost, "/records/sub-1/decrypt", ""); rec.Code != http.StatusOK {
		t.Fatalf("first decrypt: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/records/sub-1/decrypt", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second decrypt: status %d", rec.Code)
	}
	// Reads are not limited.
	if rec := do(t, h, http.MethodGet, "/stats", ""); rec.Code != http.StatusOK {
		t.Errorf("stats: status %d", rec.Code)
	}
	if got := mc.Counter(metrics.MetricRateLimitedCount, map[string]string{"account": "0xalice"}); got != 1 {
		t.Errorf("rate limited count = %d", got)
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := &fakeService{}
	h := NewServer(svc, Options{HistoryLimit: 7}).Routes()

	do(t, h, http.MethodGet, "/history", "")
	if svc.lastLimit != 7 {
		t.Errorf("default limit = %d", svc.lastLimit)
	}
	do(t, h, http.MethodGet, "/history?limit=0", "")
	if svc.lastLimit != 0 {
		t.Errorf("explicit limit = %d", svc.lastLimit)
	}
	if rec := do(t, h, http.MethodGet, "/history?limit=lots", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status %d", rec.Code)
	}
}

func TestHealthAndAvailability(t *testing.T) {
	hc := health.NewChecker("test")
	hc.Register("ledger", func(context.Context) error { return errors.New("ledger unavailable") })
	h := NewServer(&fakeService{available: true}, Options{Health: hc}).Routes()

	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "ledger unavailable") {
		t.Errorf("health: status %d body %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodGet, "/availability", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"available":true`) {
		t.Errorf("availability: status %d body %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("metrics without a collector: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/events", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"events":[]`) {
		t.Errorf("events: status %d body %s", rec.Code, rec.Body)
	}
}
