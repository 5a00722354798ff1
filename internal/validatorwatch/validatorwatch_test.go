package validatorwatch

import (
	"context"
	"io"
	"log"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trustlines-network/bridge-validator/internal/contracts"
	"github.com/trustlines-network/bridge-validator/internal/controlbus"
)

// packedCaller packs a real isValidator response so the watcher's
// UnpackIntoInterface call exercises the actual ABI round trip.
type packedCaller struct {
	isValidator bool
}

func (f *packedCaller) CallContractData(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return contracts.ValidatorProxy().Methods["isValidator"].Outputs.Pack(f.isValidator)
}

func TestStatusWatcherEmitsOnTransition(t *testing.T) {
	caller := &packedCaller{isValidator: true}
	bus := controlbus.New(4)
	w := NewStatusWatcher(caller, common.Address{}, common.HexToAddress("0xA11CE"), time.Hour, bus, nil, log.New(io.Discard, "", 0))

	if err := w.check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	select {
	case s := <-bus.Channel():
		if s.Kind != controlbus.ValidatorBecameActive {
			t.Errorf("expected ValidatorBecameActive, got %s", s.Kind)
		}
	default:
		t.Fatal("expected a signal on first check")
	}
	if !w.IsActive() {
		t.Error("expected IsActive true")
	}

	caller.isValidator = false
	inactiveCalled := false
	w.onInactive = func() { inactiveCalled = true }

	if err := w.check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	select {
	case s := <-bus.Channel():
		if s.Kind != controlbus.ValidatorBecameInactive {
			t.Errorf("expected ValidatorBecameInactive, got %s", s.Kind)
		}
	default:
		t.Fatal("expected a signal on transition to inactive")
	}
	if !inactiveCalled {
		t.Error("expected onInactive callback to fire")
	}
}

type fakeBalanceClient struct {
	balance *big.Int
}

func (f *fakeBalanceClient) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	return f.balance, nil
}

func TestBalanceWatcherHysteresis(t *testing.T) {
	minimum := big.NewInt(100)
	recoveryBuffer := big.NewInt(10)
	client := &fakeBalanceClient{balance: big.NewInt(50)}
	bus := controlbus.New(4)
	w := NewBalanceWatcher(client, common.Address{}, minimum, recoveryBuffer, time.Hour, bus, log.New(io.Discard, "", 0))

	if err := w.check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	select {
	case s := <-bus.Channel():
		if s.Kind != controlbus.BalanceLow {
			t.Errorf("expected BalanceLow, got %s", s.Kind)
		}
	default:
		t.Fatal("expected BalanceLow signal")
	}

	// Balance rises above minimum but below the recovery buffer: should
	// stay low (no flapping at the boundary).
	client.balance = big.NewInt(105)
	if err := w.check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	select {
	case s := <-bus.Channel():
		t.Fatalf("expected no signal while still within the recovery buffer, got %s", s.Kind)
	default:
	}
	if w.IsOK() {
		t.Error("expected balance to still read not-OK inside the recovery buffer")
	}

	client.balance = big.NewInt(111)
	if err := w.check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	select {
	case s := <-bus.Channel():
		if s.Kind != controlbus.BalanceOK {
			t.Errorf("expected BalanceOK, got %s", s.Kind)
		}
	default:
		t.Fatal("expected BalanceOK signal once above the recovery buffer")
	}
}
