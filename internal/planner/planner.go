// Package planner implements the Confirmation Task Planner: the single
// goroutine that mutates the Transfer Recorder and decides which
// transfers are safe to schedule for confirmation, grounded on the
// teacher's single-owner state-machine shape (e.g.
// pkg/consensus.ConsensusHealthMonitor's single monitorLoop goroutine
// mutating shared state behind one mutex, generalized here to four input
// channels instead of one ticker).
package planner

import (
	"context"
	"log"
	"time"

	"github.com/trustlines-network/bridge-validator/internal/bridgetypes"
	"github.com/trustlines-network/bridge-validator/internal/controlbus"
	"github.com/trustlines-network/bridge-validator/internal/recorder"
)

// Config tunes the Planner's poll cadence and recorder housekeeping.
type Config struct {
	PollInterval  time.Duration
	ClearInterval time.Duration
}

// Planner is the sole mutator of a recorder.State. It drains transfer
// and home-chain event channels, tracks validator-active/balance-ok
// status from the control bus, and forwards newly eligible transfers to
// the Sender.
type Planner struct {
	state *recorder.State
	cfg   Config

	transfers     <-chan bridgetypes.TransferEvent
	confirmations <-chan bridgetypes.ConfirmationEvent
	completions   <-chan bridgetypes.CompletionEvent
	control       <-chan controlbus.Signal

	tasks chan<- bridgetypes.TransferEvent

	validatorActive bool
	balanceOK       bool

	logger *log.Logger
}

// New builds a Planner wired to its four input channels and one output
// channel. validatorActive and balanceOK start false: the Planner must
// hear from both watchers before it will schedule anything, so a cold
// start never races a stale assumption about validator standing.
func New(
	state *recorder.State,
	cfg Config,
	transfers <-chan bridgetypes.TransferEvent,
	confirmations <-chan bridgetypes.ConfirmationEvent,
	completions <-chan bridgetypes.CompletionEvent,
	control <-chan controlbus.Signal,
	tasks chan<- bridgetypes.TransferEvent,
	logger *log.Logger,
) *Planner {
	return &Planner{
		state:         state,
		cfg:           cfg,
		transfers:     transfers,
		confirmations: confirmations,
		completions:   completions,
		control:       control,
		tasks:         tasks,
		logger:        logger,
	}
}

// Run drives the planner loop until ctx is cancelled. ctx cancellation
// is the only expected exit; any other return is a fatal error the
// supervisor propagates.
func (p *Planner) Run(ctx context.Context) error {
	pollTicker := time.NewTicker(p.cfg.PollInterval)
	defer pollTicker.Stop()
	clearTicker := time.NewTicker(p.cfg.ClearInterval)
	defer clearTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event := <-p.transfers:
			p.state.ApplyTransferEvent(event)
			p.drainAndSchedule()

		case event := <-p.confirmations:
			p.state.ApplyConfirmationEvent(event)
			p.drainAndSchedule()

		case event := <-p.completions:
			p.state.ApplyCompletionEvent(event)
			p.drainAndSchedule()

		case signal := <-p.control:
			p.applySignal(signal)
			p.drainAndSchedule()

		case <-pollTicker.C:
			p.drainAndSchedule()

		case <-clearTicker.C:
			p.state.ClearTransfers()
		}
	}
}

func (p *Planner) applySignal(signal controlbus.Signal) {
	switch signal.Kind {
	case controlbus.ValidatorBecameActive:
		p.validatorActive = true
		p.logger.Printf("validator became active")
	case controlbus.ValidatorBecameInactive:
		p.validatorActive = false
		p.logger.Printf("validator became inactive, confirmations paused")
	case controlbus.BalanceOK:
		p.balanceOK = true
		p.logger.Printf("validator balance recovered above minimum")
	case controlbus.BalanceLow:
		p.balanceOK = false
		p.logger.Printf("validator balance below minimum, confirmations paused")
	case controlbus.Shutdown:
		p.logger.Printf("shutdown signal received")
	}
}

// drainAndSchedule non-blockingly drains every input channel before
// asking the recorder for newly eligible transfers, so a burst of
// events arriving together is applied before scheduling decisions are
// made — this preserves each channel's arrival order (spec §5) without
// requiring a dedicated drain pass per channel.
func (p *Planner) drainAndSchedule() {
	for drained := true; drained; {
		drained = false
		select {
		case event := <-p.transfers:
			p.state.ApplyTransferEvent(event)
			drained = true
		default:
		}
		select {
		case event := <-p.confirmations:
			p.state.ApplyConfirmationEvent(event)
			drained = true
		default:
		}
		select {
		case event := <-p.completions:
			p.state.ApplyCompletionEvent(event)
			drained = true
		default:
		}
	}

	if !p.validatorActive || !p.balanceOK {
		return
	}

	now := time.Now()
	for _, transfer := range p.state.GetUnconfirmedTransfers(now) {
		select {
		case p.tasks <- transfer:
		default:
			p.logger.Printf("task channel full, blocking to enqueue transfer %s", transfer.TransferHash.Hex())
			p.tasks <- transfer
		}
	}
}
