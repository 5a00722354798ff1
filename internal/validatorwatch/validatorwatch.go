// Package validatorwatch implements the Validator Status Watcher and
// Validator Balance Watcher: two ticker-driven polling loops that emit
// control-bus signals on transition, grounded on the teacher's
// ConsensusHealthMonitor ticker + callback + sync.RWMutex shape in
// pkg/consensus/health_monitor.go.
package validatorwatch

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trustlines-network/bridge-validator/internal/bridgeerrors"
	"github.com/trustlines-network/bridge-validator/internal/contracts"
	"github.com/trustlines-network/bridge-validator/internal/controlbus"
)

// StatusWatcher polls the validator proxy contract's isValidator view
// function and emits ValidatorBecameActive / ValidatorBecameInactive on
// every transition. On a transition to inactive it also invokes an
// onInactive callback, which the composition root wires to the
// supervisor's graceful-stop path (spec §4.6: losing validator-set
// membership at runtime stops confirming, it does not crash).
type StatusWatcher struct {
	caller            ContractCaller
	validatorProxyAddr common.Address
	validatorAddr     common.Address
	pollInterval      time.Duration
	bus               *controlbus.Bus
	onInactive        func()

	mu     sync.RWMutex
	active bool
	known  bool

	logger *log.Logger
}

// ContractCaller is the minimal read-only call surface a watcher needs;
// internal/chain.Client satisfies it.
type ContractCaller interface {
	CallContractData(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// NewStatusWatcher builds a Validator Status Watcher.
func NewStatusWatcher(caller ContractCaller, validatorProxyAddr, validatorAddr common.Address, pollInterval time.Duration, bus *controlbus.Bus, onInactive func(), logger *log.Logger) *StatusWatcher {
	return &StatusWatcher{
		caller:             caller,
		validatorProxyAddr: validatorProxyAddr,
		validatorAddr:      validatorAddr,
		pollInterval:       pollInterval,
		bus:                bus,
		onInactive:         onInactive,
		logger:             logger,
	}
}

// Run polls isValidator every pollInterval until ctx is cancelled.
func (w *StatusWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	if err := w.check(ctx); err != nil {
		w.logger.Printf("initial validator status check failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.check(ctx); err != nil {
				w.logger.Printf("validator status check failed: %v", err)
			}
		}
	}
}

func (w *StatusWatcher) check(ctx context.Context) error {
	data, err := contracts.ValidatorProxy().Pack("isValidator", w.validatorAddr)
	if err != nil {
		return fmt.Errorf("%w: failed to pack isValidator call: %s", bridgeerrors.ErrSetup, err)
	}

	out, err := w.caller.CallContractData(ctx, w.validatorProxyAddr, data)
	if err != nil {
		return fmt.Errorf("%w: %s", bridgeerrors.ErrTransient, err)
	}

	var isValidator bool
	if err := contracts.ValidatorProxy().UnpackIntoInterface(&isValidator, "isValidator", out); err != nil {
		return fmt.Errorf("%w: failed to unpack isValidator result: %s", bridgeerrors.ErrSetup, err)
	}

	w.mu.Lock()
	wasKnown, wasActive := w.known, w.active
	w.known = true
	w.active = isValidator
	w.mu.Unlock()

	if !wasKnown || wasActive != isValidator {
		if isValidator {
			w.logger.Printf("validator %s is now active", w.validatorAddr)
			w.bus.Send(controlbus.ValidatorBecameActive)
		} else {
			w.logger.Printf("validator %s is no longer active", w.validatorAddr)
			w.bus.Send(controlbus.ValidatorBecameInactive)
			if w.onInactive != nil {
				w.onInactive()
			}
		}
	}
	return nil
}

// IsActive reports the watcher's last-known validator-active status.
func (w *StatusWatcher) IsActive() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.active
}

// balanceClient is the slice of internal/chain.Client a balance watcher
// needs.
type balanceClient interface {
	BalanceAt(ctx context.Context, address common.Address) (*big.Int, error)
}

// BalanceWatcher polls the validator's home-chain ETH balance and emits
// BalanceLow / BalanceOK around a configured minimum, with a recovery
// buffer above that minimum before re-emitting BalanceOK — this
// hysteresis is a supplement beyond the distilled spec (SPEC_FULL.md
// §4.7), grounded on the teacher's stall/recovery hysteresis shape,
// added to stop the signal from flapping when the balance sits exactly
// on the boundary.
type BalanceWatcher struct {
	client       balanceClient
	address      common.Address
	minimum      *big.Int
	recoverAbove *big.Int
	pollInterval time.Duration
	bus          *controlbus.Bus

	mu    sync.RWMutex
	ok    bool
	known bool

	logger *log.Logger
}

// NewBalanceWatcher builds a Validator Balance Watcher. recoveryBuffer
// is added to minimum to compute the balance a low validator must climb
// back above before BalanceOK is re-emitted.
func NewBalanceWatcher(client balanceClient, address common.Address, minimum, recoveryBuffer *big.Int, pollInterval time.Duration, bus *controlbus.Bus, logger *log.Logger) *BalanceWatcher {
	return &BalanceWatcher{
		client:       client,
		address:      address,
		minimum:      minimum,
		recoverAbove: new(big.Int).Add(minimum, recoveryBuffer),
		pollInterval: pollInterval,
		bus:          bus,
		logger:       logger,
	}
}

// Run polls the balance every pollInterval until ctx is cancelled.
func (w *BalanceWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	if err := w.check(ctx); err != nil {
		w.logger.Printf("initial balance check failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.check(ctx); err != nil {
				w.logger.Printf("balance check failed: %v", err)
			}
		}
	}
}

func (w *BalanceWatcher) check(ctx context.Context) error {
	balance, err := w.client.BalanceAt(ctx, w.address)
	if err != nil {
		return fmt.Errorf("%w: %s", bridgeerrors.ErrTransient, err)
	}

	w.mu.Lock()
	wasKnown, wasOK := w.known, w.ok
	w.known = true

	switch {
	case !wasKnown:
		w.ok = balance.Cmp(w.minimum) >= 0
	case !wasOK && balance.Cmp(w.recoverAbove) >= 0:
		w.ok = true
	case balance.Cmp(w.minimum) < 0:
		w.ok = false
	default:
		w.ok = wasOK
	}
	nowOK := w.ok
	w.mu.Unlock()

	if !wasKnown || wasOK != nowOK {
		if nowOK {
			w.logger.Printf("validator balance %s is at or above minimum %s", balance, w.minimum)
			w.bus.Send(controlbus.BalanceOK)
		} else {
			w.logger.Printf("validator balance %s below minimum %s", balance, w.minimum)
			w.bus.Send(controlbus.BalanceLow)
		}
	}
	return nil
}

// IsOK reports the watcher's last-known balance status.
func (w *BalanceWatcher) IsOK() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ok
}
