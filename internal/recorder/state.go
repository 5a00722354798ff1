// Package recorder implements the Transfer Recorder: the single-writer
// in-memory projection over foreign Transfer events and home Confirmation
// / TransferCompleted events that the Confirmation Task Planner queries
// to decide which transfers still need confirming.
package recorder

import (
	"fmt"
	"sync"
	"time"

	"github.com/trustlines-network/bridge-validator/internal/bridgeerrors"
	"github.com/trustlines-network/bridge-validator/internal/bridgetypes"
)

// State is the authoritative recorder projection described in spec §3.
// All mutators are safe for concurrent use, but the design relies on a
// single caller (the Planner) to serialise mutations — see invariants.
type State struct {
	mu sync.Mutex

	syncPersistenceTime time.Duration

	transferEvents map[bridgetypes.TransferHash]bridgetypes.TransferEvent

	seenTransfers     map[bridgetypes.TransferHash]struct{}
	seenConfirmations map[bridgetypes.TransferHash]struct{}
	seenCompletions   map[bridgetypes.TransferHash]struct{}
	scheduled         map[bridgetypes.TransferHash]struct{}

	confirmationsSyncedUntil time.Time
	completionsSyncedUntil   time.Time
}

// New creates an empty recorder state. sync_persistence_time is the
// maximum staleness tolerated after the last watermark update before
// is_in_sync reports false — by default one home-chain step.
func New(syncPersistenceTime time.Duration) *State {
	return &State{
		syncPersistenceTime: syncPersistenceTime,
		transferEvents:      make(map[bridgetypes.TransferHash]bridgetypes.TransferEvent),
		seenTransfers:       make(map[bridgetypes.TransferHash]struct{}),
		seenConfirmations:   make(map[bridgetypes.TransferHash]struct{}),
		seenCompletions:     make(map[bridgetypes.TransferHash]struct{}),
		scheduled:           make(map[bridgetypes.TransferHash]struct{}),
	}
}

// ApplyTransferEvent idempotently records a foreign Transfer log.
func (s *State) ApplyTransferEvent(event bridgetypes.TransferEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seenTransfers[event.TransferHash] = struct{}{}
	s.transferEvents[event.TransferHash] = event
}

// ApplyConfirmationEvent idempotently records a home Confirmation log by
// this validator.
func (s *State) ApplyConfirmationEvent(event bridgetypes.ConfirmationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seenConfirmations[event.TransferHash] = struct{}{}
}

// ApplyCompletionEvent idempotently records a home TransferCompleted log.
func (s *State) ApplyCompletionEvent(event bridgetypes.CompletionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seenCompletions[event.TransferHash] = struct{}{}
}

// ApplySyncCompleted advances the confirmation or completion sync
// watermark. A non-monotonic timestamp is an invariant violation and is
// rejected without mutating state, per spec invariant 2.
func (s *State) ApplySyncCompleted(kind bridgetypes.SyncKind, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case bridgetypes.SyncKindConfirmation:
		if timestamp.Before(s.confirmationsSyncedUntil) {
			return fmt.Errorf("%w: confirmation sync time must never decrease (got %s, have %s)",
				bridgeerrors.ErrInvariant, timestamp, s.confirmationsSyncedUntil)
		}
		s.confirmationsSyncedUntil = timestamp
	case bridgetypes.SyncKindCompletion:
		if timestamp.Before(s.completionsSyncedUntil) {
			return fmt.Errorf("%w: completion sync time must never decrease (got %s, have %s)",
				bridgeerrors.ErrInvariant, timestamp, s.completionsSyncedUntil)
		}
		s.completionsSyncedUntil = timestamp
	default:
		return fmt.Errorf("%w: unknown sync kind %q", bridgeerrors.ErrInvariant, kind)
	}
	return nil
}

// IsInSync reports whether both home-side watermarks are recent enough
// that the Planner may safely emit tasks without risking a duplicate
// confirmation of an already-confirmed or already-completed transfer.
func (s *State) IsInSync(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isInSyncLocked(now)
}

func (s *State) isInSyncLocked(now time.Time) bool {
	syncedUntil := s.confirmationsSyncedUntil
	if s.completionsSyncedUntil.Before(syncedUntil) {
		syncedUntil = s.completionsSyncedUntil
	}
	return !now.After(syncedUntil.Add(s.syncPersistenceTime))
}

// GetUnconfirmedTransfers returns, and atomically marks as scheduled,
// every transfer hash seen but not yet confirmed, completed, or already
// scheduled. Returns nil if the recorder is not in sync. A second call
// immediately after the first always returns empty (spec invariant 3),
// because scheduling is itself what made the hashes ineligible.
func (s *State) GetUnconfirmedTransfers(now time.Time) []bridgetypes.TransferEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isInSyncLocked(now) {
		return nil
	}

	var out []bridgetypes.TransferEvent
	for hash := range s.seenTransfers {
		if _, ok := s.seenConfirmations[hash]; ok {
			continue
		}
		if _, ok := s.seenCompletions[hash]; ok {
			continue
		}
		if _, ok := s.scheduled[hash]; ok {
			continue
		}
		s.scheduled[hash] = struct{}{}
		out = append(out, s.transferEvents[hash])
	}
	return out
}

// ClearTransfers drops every hash that has reached all three stages
// (seen as a transfer, confirmed, and completed) from seenTransfers,
// scheduled, and transferEvents — per spec invariant 4. The confirmation
// and completion sets are left alone: a late-arriving duplicate log for
// an already-cleared hash must not resurrect it.
func (s *State) ClearTransfers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash := range s.seenTransfers {
		_, confirmed := s.seenConfirmations[hash]
		_, completed := s.seenCompletions[hash]
		if !confirmed || !completed {
			continue
		}
		delete(s.seenTransfers, hash)
		delete(s.scheduled, hash)
		delete(s.transferEvents, hash)
	}
}

// Summary is a JSON-serializable snapshot of recorder state, used by the
// debug HTTP endpoint and the SIGUSR1 state dump.
type Summary struct {
	TransferCount            int       `json:"transfer_count"`
	ConfirmationCount        int       `json:"confirmation_count"`
	CompletionCount          int       `json:"completion_count"`
	ScheduledCount           int       `json:"scheduled_count"`
	ConfirmationsSyncedUntil time.Time `json:"confirmations_synced_until"`
	CompletionsSyncedUntil   time.Time `json:"completions_synced_until"`
}

// GetStateSummary returns a point-in-time snapshot of the recorder's
// counters, grounded on the teacher's HealthStatusReport shape.
func (s *State) GetStateSummary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Summary{
		TransferCount:            len(s.seenTransfers),
		ConfirmationCount:        len(s.seenConfirmations),
		CompletionCount:          len(s.seenCompletions),
		ScheduledCount:           len(s.scheduled),
		ConfirmationsSyncedUntil: s.confirmationsSyncedUntil,
		CompletionsSyncedUntil:   s.completionsSyncedUntil,
	}
}
