package watcher

import (
	"context"
	"errors"
	"io"
	"log"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/trustlines-network/bridge-validator/internal/bridgeerrors"
	"github.com/trustlines-network/bridge-validator/internal/bridgetypes"
	"github.com/trustlines-network/bridge-validator/internal/queue"
)

type fakeReceiptClient struct {
	head     uint64
	receipts map[common.Hash]*types.Receipt
}

func (f *fakeReceiptClient) HeadNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeReceiptClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return f.receipts[txHash], nil
}

type noopBackoff struct{}

func (noopBackoff) Next() time.Duration { return time.Millisecond }
func (noopBackoff) Reset()              {}

func newTestWatcher(t *testing.T, client *fakeReceiptClient, pending *queue.Pending, resubmit Resubmitter) *Watcher {
	t.Helper()
	cfg := Config{
		PollInterval:        time.Hour,
		MaxReorgDepth:       10,
		EvictionGracePeriod: time.Minute,
		MaxResubmissions:    5,
		GasBumpPercent:      20,
	}
	return New(client, pending, cfg, resubmit, noopBackoff{}, log.New(io.Discard, "", 0))
}

func TestWatcherLeavesUnminedTransactionWithinGracePeriod(t *testing.T) {
	pending := queue.New()
	pending.Push(bridgetypes.PendingTransaction{TxHash: common.HexToHash("0x1"), SubmittedAt: time.Now()})
	client := &fakeReceiptClient{head: 100, receipts: map[common.Hash]*types.Receipt{}}
	w := newTestWatcher(t, client, pending, nil)

	if err := w.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if pending.Len() != 1 {
		t.Errorf("expected tx to remain pending, queue len = %d", pending.Len())
	}
}

func TestWatcherBuriesSuccessfulReceipt(t *testing.T) {
	pending := queue.New()
	txHash := common.HexToHash("0x1")
	pending.Push(bridgetypes.PendingTransaction{TxHash: txHash, SubmittedAt: time.Now()})

	client := &fakeReceiptClient{
		head: 100,
		receipts: map[common.Hash]*types.Receipt{
			txHash: {BlockNumber: big.NewInt(50), Status: types.ReceiptStatusSuccessful},
		},
	}
	w := newTestWatcher(t, client, pending, nil)

	if err := w.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if pending.Len() != 0 {
		t.Errorf("expected buried tx to be popped, queue len = %d", pending.Len())
	}
}

func TestWatcherLeavesReceiptAboveThreshold(t *testing.T) {
	pending := queue.New()
	txHash := common.HexToHash("0x1")
	pending.Push(bridgetypes.PendingTransaction{TxHash: txHash, SubmittedAt: time.Now()})

	client := &fakeReceiptClient{
		head: 100,
		receipts: map[common.Hash]*types.Receipt{
			txHash: {BlockNumber: big.NewInt(95), Status: types.ReceiptStatusSuccessful}, // threshold = 90
		},
	}
	w := newTestWatcher(t, client, pending, nil)

	if err := w.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if pending.Len() != 1 {
		t.Errorf("expected tx not yet buried to remain pending, queue len = %d", pending.Len())
	}
}

func TestWatcherReturnsErrRevertedOnFailedReceipt(t *testing.T) {
	pending := queue.New()
	txHash := common.HexToHash("0x1")
	pending.Push(bridgetypes.PendingTransaction{TxHash: txHash, SubmittedAt: time.Now()})

	client := &fakeReceiptClient{
		head: 100,
		receipts: map[common.Hash]*types.Receipt{
			txHash: {BlockNumber: big.NewInt(50), Status: types.ReceiptStatusFailed},
		},
	}
	w := newTestWatcher(t, client, pending, nil)

	err := w.drain(context.Background())
	if !errors.Is(err, bridgeerrors.ErrReverted) {
		t.Fatalf("expected ErrReverted, got %v", err)
	}
	if pending.Len() != 0 {
		t.Errorf("expected reverted tx to be popped before returning, queue len = %d", pending.Len())
	}
}

func TestWatcherResubmitsPastGracePeriod(t *testing.T) {
	pending := queue.New()
	txHash := common.HexToHash("0x1")
	pending.Push(bridgetypes.PendingTransaction{
		TxHash:      txHash,
		SubmittedAt: time.Now().Add(-2 * time.Minute),
	})
	client := &fakeReceiptClient{head: 100, receipts: map[common.Hash]*types.Receipt{}}

	resubmitCalled := false
	newHash := common.HexToHash("0x2")
	resubmit := func(ctx context.Context, tx bridgetypes.PendingTransaction, bumpPercent int) (bridgetypes.PendingTransaction, error) {
		resubmitCalled = true
		if bumpPercent != 20 {
			t.Errorf("expected 20%% bump on first resubmission, got %d", bumpPercent)
		}
		tx.TxHash = newHash
		return tx, nil
	}

	w := newTestWatcher(t, client, pending, resubmit)
	if err := w.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !resubmitCalled {
		t.Fatal("expected resubmit to be called")
	}

	updated, ok := pending.Peek()
	if !ok {
		t.Fatal("expected the resubmitted tx to remain in the queue")
	}
	if updated.TxHash != newHash {
		t.Errorf("expected queue front to carry the new tx hash")
	}
	if updated.Attempts != 1 {
		t.Errorf("expected Attempts = 1, got %d", updated.Attempts)
	}
}

func TestWatcherAbandonsAfterMaxResubmissions(t *testing.T) {
	pending := queue.New()
	txHash := common.HexToHash("0x1")
	pending.Push(bridgetypes.PendingTransaction{
		TxHash:      txHash,
		SubmittedAt: time.Now().Add(-2 * time.Minute),
		Attempts:    5,
	})
	client := &fakeReceiptClient{head: 100, receipts: map[common.Hash]*types.Receipt{}}

	w := newTestWatcher(t, client, pending, func(ctx context.Context, tx bridgetypes.PendingTransaction, bumpPercent int) (bridgetypes.PendingTransaction, error) {
		t.Fatal("resubmit should not be called once max attempts are reached")
		return bridgetypes.PendingTransaction{}, nil
	})

	if err := w.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if pending.Len() != 0 {
		t.Errorf("expected abandoned tx to be dropped, queue len = %d", pending.Len())
	}
}
