// Package fetcher implements the Event Fetcher: a polling loop over a
// chain's eth_getLogs that stays a configurable number of blocks behind
// the head (the reorg horizon) and decodes a fixed set of contract
// events, grounded on the teacher's EventWatcher poll loop in
// pkg/anchor/event_watcher.go, retargeted from Certen anchor events onto
// ERC-20 Transfer logs and home-bridge Confirmation/TransferCompleted
// logs.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sort"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/trustlines-network/bridge-validator/internal/bridgeerrors"
	"github.com/trustlines-network/bridge-validator/internal/bridgetypes"
	"github.com/trustlines-network/bridge-validator/internal/chain"
	"github.com/trustlines-network/bridge-validator/internal/contracts"
)

// Config bundles the poll-loop tuning knobs shared by every fetcher.
type Config struct {
	MaxReorgDepth uint64
	MaxBlockRange uint64
	PollInterval  time.Duration
	StartBlock    uint64
}

// base implements the shared 4-step poll algorithm of spec §4.1: read
// head, compute the safe head behind the reorg horizon, fetch bounded
// windows up to it, and advance the cursor. Every fetcher embeds it.
type base struct {
	client    *chain.Client
	addresses []common.Address
	topics    [][]common.Hash
	cfg       Config
	next      uint64
	logger    *log.Logger
	backoff   chain.Backoff
}

// defaultMaxBlockRange bounds each eth_getLogs window when Config leaves
// MaxBlockRange at zero.
const defaultMaxBlockRange = 2000

func newBase(client *chain.Client, addresses []common.Address, topics [][]common.Hash, cfg Config, logger *log.Logger) base {
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = defaultMaxBlockRange
	}
	return base{
		client:    client,
		addresses: addresses,
		topics:    topics,
		cfg:       cfg,
		next:      cfg.StartBlock,
		logger:    logger,
	}
}

// pollOnce fetches at most one bounded window of logs starting at the
// fetcher's cursor, advancing the cursor on success. Returns (nil, nil)
// when there is nothing new to fetch yet.
func (b *base) pollOnce(ctx context.Context) ([]types.Log, error) {
	head, err := b.client.HeadNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bridgeerrors.ErrTransient, err)
	}

	if head < b.cfg.MaxReorgDepth {
		return nil, nil
	}
	safeHead := head - b.cfg.MaxReorgDepth

	if b.next > safeHead {
		return nil, nil
	}

	toBlock := safeHead
	if b.cfg.MaxBlockRange > 0 && toBlock-b.next > b.cfg.MaxBlockRange {
		toBlock = b.next + b.cfg.MaxBlockRange
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(b.next),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: b.addresses,
		Topics:    b.topics,
	}

	logs, err := b.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bridgeerrors.ErrTransient, err)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	b.next = toBlock + 1
	return logs, nil
}

// run drives pollOnce on a ticker until ctx is cancelled, calling
// handle for every window fetched (even empty ones, so callers can
// track liveness). A transient error retries after the shared backoff;
// any other error is returned to the caller, which the supervisor
// treats as fatal.
func (b *base) run(ctx context.Context, handle func([]types.Log) error) error {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			logs, err := b.pollOnce(ctx)
			if err != nil {
				if errors.Is(err, bridgeerrors.ErrTransient) {
					delay := b.backoff.Next()
					b.logger.Printf("transient fetch error, retrying in %s: %v", delay, err)
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(delay):
					}
					continue
				}
				return err
			}
			b.backoff.Reset()
			if err := handle(logs); err != nil {
				return err
			}
		}
	}
}

// TransferFetcher watches the foreign-chain ERC-20 token contract for
// Transfer logs into the bridge escrow.
type TransferFetcher struct {
	base
	abi                abi.ABI
	foreignBridgeAddr  common.Address
	out                chan<- bridgetypes.TransferEvent
}

// NewTransferFetcher builds a fetcher over the configured foreign-chain
// token contract. foreignBridgeAddr is the escrow address every tracked
// deposit must send `to`; it is stamped onto each TransferEvent as
// MatchesForeignBridge so the Sender can sanity-check without a second
// RPC call.
func NewTransferFetcher(client *chain.Client, tokenAddr, foreignBridgeAddr common.Address, cfg Config, out chan<- bridgetypes.TransferEvent, logger *log.Logger) *TransferFetcher {
	erc20 := contracts.ERC20()
	transferTopic := erc20.Events["Transfer"].ID
	toBridgeTopic := common.BytesToHash(foreignBridgeAddr.Bytes())
	return &TransferFetcher{
		base:              newBase(client, []common.Address{tokenAddr}, [][]common.Hash{{transferTopic}, nil, {toBridgeTopic}}, cfg, logger),
		abi:               erc20,
		foreignBridgeAddr: foreignBridgeAddr,
		out:               out,
	}
}

// Run blocks until ctx is cancelled or a fatal error occurs.
func (f *TransferFetcher) Run(ctx context.Context) error {
	return f.run(ctx, func(logs []types.Log) error {
		for _, lg := range logs {
			event, err := f.decode(lg)
			if err != nil {
				return fmt.Errorf("%w: malformed Transfer log in tx %s: %s", bridgeerrors.ErrInvariant, lg.TxHash, err)
			}
			select {
			case f.out <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}

func (f *TransferFetcher) decode(lg types.Log) (bridgetypes.TransferEvent, error) {
	if len(lg.Topics) != 3 {
		return bridgetypes.TransferEvent{}, fmt.Errorf("expected 3 topics, got %d", len(lg.Topics))
	}
	// The depositor (`from`) is the recipient of the mirror asset on the
	// home chain; `to` is the foreign bridge escrow.
	from := common.BytesToAddress(lg.Topics[1].Bytes())
	to := common.BytesToAddress(lg.Topics[2].Bytes())

	var unpacked struct {
		Value *big.Int
	}
	if err := f.abi.UnpackIntoInterface(&unpacked, "Transfer", lg.Data); err != nil {
		return bridgetypes.TransferEvent{}, err
	}

	return bridgetypes.TransferEvent{
		TransferHash:         bridgetypes.ComputeTransferHash(lg.TxHash, lg.Index),
		TransactionHash:      lg.TxHash,
		LogIndex:             lg.Index,
		BlockNumber:          lg.BlockNumber,
		Amount:               unpacked.Value,
		Recipient:            from,
		MatchesForeignBridge: to == f.foreignBridgeAddr,
	}, nil
}

// HomeEventFetcher watches the home bridge contract for Confirmation
// logs emitted by this validator's own address and TransferCompleted
// logs emitted once a transfer reaches quorum.
type HomeEventFetcher struct {
	base
	abi              abi.ABI
	validatorAddr    common.Address
	confirmations    chan<- bridgetypes.ConfirmationEvent
	completions      chan<- bridgetypes.CompletionEvent
}

// NewHomeEventFetcher builds a fetcher over the configured home bridge
// contract. The log query matches every Confirmation and
// TransferCompleted log; Run then drops Confirmation logs whose
// validator topic is not this validator's own address.
func NewHomeEventFetcher(client *chain.Client, homeBridgeAddr, validatorAddr common.Address, cfg Config, confirmations chan<- bridgetypes.ConfirmationEvent, completions chan<- bridgetypes.CompletionEvent, logger *log.Logger) *HomeEventFetcher {
	homeBridge := contracts.HomeBridge()
	confirmationTopic := homeBridge.Events["Confirmation"].ID
	completionTopic := homeBridge.Events["TransferCompleted"].ID
	topics := [][]common.Hash{
		{confirmationTopic, completionTopic},
	}
	return &HomeEventFetcher{
		base:          newBase(client, []common.Address{homeBridgeAddr}, topics, cfg, logger),
		abi:           homeBridge,
		validatorAddr: validatorAddr,
		confirmations: confirmations,
		completions:   completions,
	}
}

// Run blocks until ctx is cancelled or a fatal error occurs.
func (f *HomeEventFetcher) Run(ctx context.Context) error {
	confirmationTopic := f.abi.Events["Confirmation"].ID
	completionTopic := f.abi.Events["TransferCompleted"].ID

	return f.run(ctx, func(logs []types.Log) error {
		for _, lg := range logs {
			if len(lg.Topics) == 0 {
				return fmt.Errorf("%w: home bridge log with no topics in tx %s", bridgeerrors.ErrInvariant, lg.TxHash)
			}
			switch lg.Topics[0] {
			case confirmationTopic:
				event, validator, err := f.decodeConfirmation(lg)
				if err != nil {
					return fmt.Errorf("%w: malformed Confirmation log in tx %s: %s", bridgeerrors.ErrInvariant, lg.TxHash, err)
				}
				if validator != f.validatorAddr {
					continue
				}
				select {
				case f.confirmations <- event:
				case <-ctx.Done():
					return ctx.Err()
				}
			case completionTopic:
				event, err := f.decodeCompletion(lg)
				if err != nil {
					return fmt.Errorf("%w: malformed TransferCompleted log in tx %s: %s", bridgeerrors.ErrInvariant, lg.TxHash, err)
				}
				select {
				case f.completions <- event:
				case <-ctx.Done():
					return ctx.Err()
				}
			default:
				return fmt.Errorf("%w: unexpected topic %s on home bridge contract", bridgeerrors.ErrInvariant, lg.Topics[0])
			}
		}
		return nil
	})
}

func (f *HomeEventFetcher) decodeConfirmation(lg types.Log) (bridgetypes.ConfirmationEvent, common.Address, error) {
	if len(lg.Topics) != 2 {
		return bridgetypes.ConfirmationEvent{}, common.Address{}, fmt.Errorf("expected 2 topics, got %d", len(lg.Topics))
	}
	validator := common.BytesToAddress(lg.Topics[1].Bytes())

	var unpacked struct {
		TransferHash [32]byte
	}
	if err := f.abi.UnpackIntoInterface(&unpacked, "Confirmation", lg.Data); err != nil {
		return bridgetypes.ConfirmationEvent{}, common.Address{}, err
	}

	return bridgetypes.ConfirmationEvent{
		TransferHash: bridgetypes.TransferHash(unpacked.TransferHash),
		BlockNumber:  lg.BlockNumber,
		LogIndex:     lg.Index,
	}, validator, nil
}

func (f *HomeEventFetcher) decodeCompletion(lg types.Log) (bridgetypes.CompletionEvent, error) {
	var unpacked struct {
		TransferHash [32]byte
	}
	if err := f.abi.UnpackIntoInterface(&unpacked, "TransferCompleted", lg.Data); err != nil {
		return bridgetypes.CompletionEvent{}, err
	}

	return bridgetypes.CompletionEvent{
		TransferHash: bridgetypes.TransferHash(unpacked.TransferHash),
		BlockNumber:  lg.BlockNumber,
		LogIndex:     lg.Index,
	}, nil
}
