// Package debugserver exposes a small read-only HTTP surface for
// operators, grounded on the teacher's pkg/server handler-struct-with-
// logger pattern (NewXHandlers(deps..., logger) *XHandlers) and the
// source's webservice.py InternalState resource, which the Python
// daemon serves for exactly the same purpose: letting an operator
// inspect recorder counters and process info without attaching a
// debugger.
package debugserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/trustlines-network/bridge-validator/internal/config"
	"github.com/trustlines-network/bridge-validator/internal/recorder"
)

// Version is set at build time via -ldflags "-X .../debugserver.Version=...".
var Version = "dev"

// ValidatorStatus is the slice of validatorwatch the internal-state
// endpoint reports, narrowed so this package doesn't depend on
// validatorwatch's concrete types.
type ValidatorStatus interface {
	IsActive() bool
}

// BalanceStatus is the slice of validatorwatch.BalanceWatcher reported.
type BalanceStatus interface {
	IsOK() bool
}

// Handlers serves the operator-facing debug endpoints.
type Handlers struct {
	cfg       *config.Config
	state     *recorder.State
	validator ValidatorStatus
	balance   BalanceStatus
	startedAt time.Time
	logger    *log.Logger
}

// New builds the debug handlers. logger defaults to a [DebugServer]-
// prefixed stdlib logger if nil, matching the teacher's NewXHandlers
// constructors.
func New(cfg *config.Config, state *recorder.State, validator ValidatorStatus, balance BalanceStatus, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[DebugServer] ", log.LstdFlags)
	}
	return &Handlers{
		cfg:       cfg,
		state:     state,
		validator: validator,
		balance:   balance,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// Mux builds the http.ServeMux for the debug surface, ready to be
// wrapped in an http.Server by the composition root.
func (h *Handlers) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/bridge/internal-state", h.handleInternalState)
	return mux
}

type processInfo struct {
	PID       int     `json:"pid"`
	UptimeSec float64 `json:"uptime_seconds"`
}

type internalStateResponse struct {
	Version         string           `json:"version"`
	Process         processInfo      `json:"process"`
	Recorder        recorder.Summary `json:"recorder"`
	ValidatorActive bool             `json:"validator_active"`
	BalanceOK       bool             `json:"balance_ok"`
	Config          configSnapshot   `json:"config"`
}

// configSnapshot reports non-secret configuration only — it must never
// carry ValidatorPrivateKey.
type configSnapshot struct {
	ForeignRPCURL                     string `json:"foreign_rpc_url"`
	HomeRPCURL                        string `json:"home_rpc_url"`
	ForeignBridgeContractAddress      string `json:"foreign_bridge_contract_address"`
	HomeBridgeContractAddress         string `json:"home_bridge_contract_address"`
	ForeignChainTokenContractAddress  string `json:"foreign_chain_token_contract_address"`
	MinimumValidatorBalance           int64  `json:"minimum_validator_balance"`
}

func (h *Handlers) handleInternalState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "only GET is allowed")
		return
	}

	resp := internalStateResponse{
		Version: Version,
		Process: processInfo{
			PID:       os.Getpid(),
			UptimeSec: time.Since(h.startedAt).Seconds(),
		},
		Recorder: h.state.GetStateSummary(),
		Config: configSnapshot{
			ForeignRPCURL:                    h.cfg.ForeignRPCURL,
			HomeRPCURL:                       h.cfg.HomeRPCURL,
			ForeignBridgeContractAddress:     h.cfg.ForeignBridgeContractAddress,
			HomeBridgeContractAddress:        h.cfg.HomeBridgeContractAddress,
			ForeignChainTokenContractAddress: h.cfg.ForeignChainTokenContractAddress,
			MinimumValidatorBalance:          h.cfg.MinimumValidatorBalance,
		},
	}
	if h.validator != nil {
		resp.ValidatorActive = h.validator.IsActive()
	}
	if h.balance != nil {
		resp.BalanceOK = h.balance.IsOK()
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Printf("failed to encode response: %v", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Run starts an http.Server bound to addr and blocks until ctx is
// cancelled, then gracefully shuts it down — the pattern the composition
// root hands to the supervisor like any other task.
func Run(ctx context.Context, addr string, mux *http.ServeMux, logger *log.Logger) error {
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("debug server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("debug server shutdown error: %v", err)
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
