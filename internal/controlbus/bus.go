// Package controlbus carries validator-status, balance, and shutdown
// signals from the watchers to the Confirmation Task Planner and the
// Supervisor. It is a tagged sum type, not a general pub/sub system: the
// Planner owns the interpretation of every signal kind.
package controlbus

// Kind identifies a control signal.
type Kind int

const (
	ValidatorBecameActive Kind = iota
	ValidatorBecameInactive
	BalanceOK
	BalanceLow
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case ValidatorBecameActive:
		return "ValidatorBecameActive"
	case ValidatorBecameInactive:
		return "ValidatorBecameInactive"
	case BalanceOK:
		return "BalanceOK"
	case BalanceLow:
		return "BalanceLow"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Signal is a single control-bus message.
type Signal struct {
	Kind Kind
}

// Bus is a single channel carrying control signals from every watcher to
// the Planner. It has one consumer (the Planner) and several producers
// (the validator-status watcher, the balance watcher, and the
// supervisor's shutdown handler), so sends never block the caller: when
// the channel is full the signal is dropped.
type Bus struct {
	ch chan Signal
}

// New creates a control bus with the given buffer capacity.
func New(capacity int) *Bus {
	return &Bus{ch: make(chan Signal, capacity)}
}

// Send enqueues a signal without blocking. It returns false, and the
// signal is dropped, when the bus is full; Send itself neither logs nor
// reports the drop anywhere else.
func (b *Bus) Send(kind Kind) bool {
	select {
	case b.ch <- Signal{Kind: kind}:
		return true
	default:
		return false
	}
}

// Channel exposes the receive side for the Planner's select loop.
func (b *Bus) Channel() <-chan Signal {
	return b.ch
}
