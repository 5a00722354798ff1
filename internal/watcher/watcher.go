// Package watcher implements the Confirmation Watcher: the burial loop
// that walks the pending-transaction FIFO in submission order, checking
// whether the oldest entry has a receipt buried below the reorg
// horizon, and short-circuiting on the first one that isn't — per
// spec §4.5's invariant that the queue is FIFO by submission order and
// receipts are monotonic in block number given correct nonce
// sequencing. Grounded on the teacher's retry-with-backoff style in
// pkg/ethereum.Client.SendContractTransactionWithRetry, generalized from
// a send-time retry to a watch-time resubmission.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/trustlines-network/bridge-validator/internal/bridgeerrors"
	"github.com/trustlines-network/bridge-validator/internal/bridgetypes"
	"github.com/trustlines-network/bridge-validator/internal/queue"
)

// receiptClient is the slice of internal/chain.Client the watcher needs.
type receiptClient interface {
	HeadNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Resubmitter rebuilds and resubmits a pending transaction at a gas
// price bumped by bumpPercent (20, 40, ... per attempt), returning the
// updated PendingTransaction to replace the queue's front entry. The
// composition root wires this to the Sender, which alone holds the
// validator's private key.
type Resubmitter func(ctx context.Context, tx bridgetypes.PendingTransaction, bumpPercent int) (bridgetypes.PendingTransaction, error)

// Config tunes the watcher's burial and resubmission policy — the Go
// resolution of spec §9 Open Question #1 (the distilled spec leaves an
// evicted transaction in the queue indefinitely; this design resolves
// it instead of re-opening the question).
type Config struct {
	PollInterval        time.Duration
	MaxReorgDepth       uint64
	EvictionGracePeriod time.Duration
	MaxResubmissions    int
	GasBumpPercent      int
}

// Watcher buries confirmed transactions and resubmits stuck ones.
type Watcher struct {
	client      receiptClient
	pending     *queue.Pending
	cfg         Config
	resubmit    Resubmitter
	logger      *log.Logger
	backoff     backoffPolicy
}

// backoffPolicy is narrowed from internal/chain.Backoff so this package
// doesn't need to import internal/chain just for the retry timer.
type backoffPolicy interface {
	Next() time.Duration
	Reset()
}

// New builds a Confirmation Watcher.
func New(client receiptClient, pending *queue.Pending, cfg Config, resubmit Resubmitter, backoff backoffPolicy, logger *log.Logger) *Watcher {
	return &Watcher{
		client:   client,
		pending:  pending,
		cfg:      cfg,
		resubmit: resubmit,
		backoff:  backoff,
		logger:   logger,
	}
}

// Run polls the pending queue every PollInterval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				if errors.Is(err, bridgeerrors.ErrTransient) {
					delay := w.backoff.Next()
					w.logger.Printf("transient watcher error, retrying in %s: %v", delay, err)
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(delay):
					}
					continue
				}
				return err
			}
			w.backoff.Reset()
		}
	}
}

// drain walks the pending queue from the front exactly as spec §4.5
// pseudocode: peek, check receipt, break on the first non-burial.
func (w *Watcher) drain(ctx context.Context) error {
	head, err := w.client.HeadNumber(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", bridgeerrors.ErrTransient, err)
	}
	var threshold uint64
	if head > w.cfg.MaxReorgDepth {
		threshold = head - w.cfg.MaxReorgDepth
	}

	for {
		tx, ok := w.pending.Peek()
		if !ok {
			return nil
		}

		receipt, err := w.client.TransactionReceipt(ctx, tx.TxHash)
		if err != nil {
			return fmt.Errorf("%w: %s", bridgeerrors.ErrTransient, err)
		}

		if receipt == nil {
			return w.handleUnmined(ctx, tx)
		}

		if receipt.BlockNumber.Uint64() > threshold {
			return nil // not yet buried; leave it for the next tick
		}

		w.pending.Pop()
		if receipt.Status == types.ReceiptStatusSuccessful {
			w.logger.Printf("confirmTransfer for %s buried in block %d", tx.TransferHash.Hex(), receipt.BlockNumber)
		} else {
			return fmt.Errorf("%w: confirmTransfer for %s reverted in tx %s", bridgeerrors.ErrReverted, tx.TransferHash.Hex(), tx.TxHash)
		}
	}
}

func (w *Watcher) handleUnmined(ctx context.Context, tx bridgetypes.PendingTransaction) error {
	if time.Since(tx.SubmittedAt) < w.cfg.EvictionGracePeriod {
		return nil
	}

	if tx.Attempts >= w.cfg.MaxResubmissions {
		w.logger.Printf("abandoning confirmTransfer for %s after %d resubmission attempts, tx %s never mined", tx.TransferHash.Hex(), tx.Attempts, tx.TxHash)
		w.pending.Pop()
		return nil
	}

	bumpPercent := w.cfg.GasBumpPercent * (tx.Attempts + 1)
	w.logger.Printf("confirmTransfer for %s unmined past grace period, resubmitting at +%d%% gas (attempt %d)", tx.TransferHash.Hex(), bumpPercent, tx.Attempts+1)

	updated, err := w.resubmit(ctx, tx, bumpPercent)
	if err != nil {
		return fmt.Errorf("%w: resubmission failed for %s: %s", bridgeerrors.ErrTransient, tx.TransferHash.Hex(), err)
	}
	updated.Attempts = tx.Attempts + 1
	updated.SubmittedAt = time.Now()

	if !w.pending.ReplaceFront(updated) {
		// The front entry vanished between Peek and here, which would
		// mean some other goroutine mutated the queue — the watcher is
		// documented as its sole consumer, so this is a programmer error.
		return fmt.Errorf("%w: pending queue front changed during resubmission", bridgeerrors.ErrInvariant)
	}
	return nil
}
