// Package queue implements the FIFO pending-transaction queue shared by
// the Confirmation Sender and the Confirmation Watcher. Go channels
// cannot be peeked without committing to a receive, so the watcher's
// "look at the oldest pending transaction, and only dequeue it once its
// receipt is buried" loop needs a structure a channel can't provide,
// grounded on the teacher's mutex-guarded map shape in
// pkg/execution/nonce_tracker.go.
package queue

import (
	"container/list"
	"sync"

	"github.com/trustlines-network/bridge-validator/internal/bridgetypes"
)

// Pending is a thread-safe FIFO of in-flight confirmation transactions,
// ordered by submission (and therefore by nonce).
type Pending struct {
	mu   sync.Mutex
	txs  *list.List
}

// New creates an empty pending-transaction queue.
func New() *Pending {
	return &Pending{txs: list.New()}
}

// Push appends a newly submitted transaction to the back of the queue.
func (p *Pending) Push(tx bridgetypes.PendingTransaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs.PushBack(tx)
}

// Peek returns the oldest pending transaction without removing it, and
// false if the queue is empty.
func (p *Pending) Peek() (bridgetypes.PendingTransaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	front := p.txs.Front()
	if front == nil {
		return bridgetypes.PendingTransaction{}, false
	}
	return front.Value.(bridgetypes.PendingTransaction), true
}

// Pop removes and returns the oldest pending transaction.
func (p *Pending) Pop() (bridgetypes.PendingTransaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	front := p.txs.Front()
	if front == nil {
		return bridgetypes.PendingTransaction{}, false
	}
	p.txs.Remove(front)
	return front.Value.(bridgetypes.PendingTransaction), true
}

// ReplaceFront swaps the oldest entry for an updated copy, used when the
// watcher resubmits a stuck transaction at a bumped gas price but the
// same nonce — the queue position must not change.
func (p *Pending) ReplaceFront(tx bridgetypes.PendingTransaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	front := p.txs.Front()
	if front == nil {
		return false
	}
	front.Value = tx
	return true
}

// Len reports the number of transactions currently in flight.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txs.Len()
}
