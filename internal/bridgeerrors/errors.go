// Package bridgeerrors defines the sentinel error kinds the bridge
// validator's components classify failures into, per the error taxonomy
// the fetcher, sender and watcher policies dispatch on.
package bridgeerrors

import "errors"

// Sentinel errors for bridge validator operations.
var (
	// ErrTransient marks a retryable RPC failure (timeout, 5xx, disconnect).
	ErrTransient = errors.New("transient rpc error")

	// ErrNonceStale marks a nonce rejected by the node as already used or
	// behind its own pending count.
	ErrNonceStale = errors.New("nonce stale")

	// ErrReverted marks a confirmTransfer call rejected on-chain (not a
	// validator, transfer already completed).
	ErrReverted = errors.New("confirmation transaction reverted")

	// ErrSetup marks a fatal configuration or startup problem (missing
	// contract, zero bridge balance, ABI mismatch).
	ErrSetup = errors.New("setup error")

	// ErrValidatorInactive marks the loss of validator-set membership at
	// runtime; it triggers graceful shutdown, not a crash.
	ErrValidatorInactive = errors.New("validator is not active")

	// ErrInvariant marks a broken recorder invariant (non-monotonic sync
	// watermark, unexpected event name) — a programmer error, always fatal.
	ErrInvariant = errors.New("invariant violation")
)
