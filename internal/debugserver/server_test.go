package debugserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trustlines-network/bridge-validator/internal/config"
	"github.com/trustlines-network/bridge-validator/internal/recorder"
)

type fakeValidatorStatus struct{ active bool }

func (f fakeValidatorStatus) IsActive() bool { return f.active }

type fakeBalanceStatus struct{ ok bool }

func (f fakeBalanceStatus) IsOK() bool { return f.ok }

func TestInternalStateReturnsRecorderSummaryAndStatus(t *testing.T) {
	cfg := config.Default()
	cfg.ForeignRPCURL = "https://foreign.example"
	cfg.MinimumValidatorBalance = 1000

	state := recorder.New(0)
	h := New(cfg, state, fakeValidatorStatus{active: true}, fakeBalanceStatus{ok: false}, nil)

	req := httptest.NewRequest(http.MethodGet, "/bridge/internal-state", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body internalStateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.ValidatorActive {
		t.Error("expected validator_active = true")
	}
	if body.BalanceOK {
		t.Error("expected balance_ok = false")
	}
	if body.Config.ForeignRPCURL != "https://foreign.example" {
		t.Errorf("unexpected foreign_rpc_url: %s", body.Config.ForeignRPCURL)
	}
	if body.Config.MinimumValidatorBalance != 1000 {
		t.Errorf("unexpected minimum_validator_balance: %d", body.Config.MinimumValidatorBalance)
	}
}

func TestInternalStateRejectsNonGet(t *testing.T) {
	cfg := config.Default()
	state := recorder.New(0)
	h := New(cfg, state, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/bridge/internal-state", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
