// Package sender implements the Confirmation Sender: dequeues scheduled
// transfers from the Planner, builds and signs a confirmTransfer
// transaction under this validator's identity, and submits it to the
// home chain, grounded on the teacher's
// pkg/ethereum.Client.SendContractTransactionWithRetry (nonce fetch, ABI
// pack, sign, send, retryable-error string matching) generalized to the
// bridge's fixed confirmTransfer signature.
package sender

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trustlines-network/bridge-validator/internal/bridgeerrors"
	"github.com/trustlines-network/bridge-validator/internal/bridgetypes"
	"github.com/trustlines-network/bridge-validator/internal/contracts"
	"github.com/trustlines-network/bridge-validator/internal/queue"
)

// chainClient is the slice of internal/chain.Client the Sender needs,
// narrowed so tests can substitute a fake without dialing an RPC node.
type chainClient interface {
	PendingNonceAt(ctx context.Context, address common.Address) (uint64, error)
	SendRawTransaction(ctx context.Context, tx *types.Transaction) error
}

// Sender submits confirmTransfer transactions for scheduled transfers.
type Sender struct {
	client         chainClient
	homeBridgeAddr common.Address
	privateKey     *ecdsa.PrivateKey
	fromAddress    common.Address
	chainID        *big.Int
	gasPrice       *big.Int

	tasks   <-chan bridgetypes.TransferEvent
	pending *queue.Pending

	logger *log.Logger
}

// New builds a Sender. gasPrice is the fixed price configured for the
// home chain (spec §6: the source assumes a gas-price oracle isn't
// needed on the home chain because it's a low-fee sidechain).
func New(client chainClient, homeBridgeAddr common.Address, privateKeyHex string, chainID *big.Int, gasPrice *big.Int, tasks <-chan bridgetypes.TransferEvent, pending *queue.Pending, logger *log.Logger) (*Sender, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse validator private key: %s", bridgeerrors.ErrSetup, err)
	}
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key from validator private key", bridgeerrors.ErrSetup)
	}

	return &Sender{
		client:         client,
		homeBridgeAddr: homeBridgeAddr,
		privateKey:     privateKey,
		fromAddress:    crypto.PubkeyToAddress(*publicKeyECDSA),
		chainID:        chainID,
		gasPrice:       gasPrice,
		tasks:          tasks,
		pending:        pending,
		logger:         logger,
	}, nil
}

// Address returns the validator's public address, used by the status
// and balance watchers to poll this validator's own standing.
func (s *Sender) Address() common.Address {
	return s.fromAddress
}

// Run dequeues scheduled transfers and confirms each one in turn. A
// single in-flight confirmTransfer at a time keeps nonce allocation
// trivial — one nonce per task, fetched once in this outer loop, per
// Open Question #3's resolution in SPEC_FULL.md §9.
func (s *Sender) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-s.tasks:
			if !ok {
				return nil
			}
			if err := s.confirm(ctx, event); err != nil {
				return err
			}
		}
	}
}

func (s *Sender) confirm(ctx context.Context, event bridgetypes.TransferEvent) error {
	if !event.MatchesForeignBridge {
		s.logger.Printf("dropping transfer %s: recipient did not deposit to the configured foreign bridge", event.TransferHash.Hex())
		return nil
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.fromAddress)
	if err != nil {
		return fmt.Errorf("%w: %s", bridgeerrors.ErrTransient, err)
	}

	tx, err := s.sendWithNonce(ctx, event, nonce)
	if err != nil {
		if errors.Is(err, bridgeerrors.ErrNonceStale) {
			s.logger.Printf("nonce %d stale for transfer %s, refetching and retrying once", nonce, event.TransferHash.Hex())
			nonce, err = s.client.PendingNonceAt(ctx, s.fromAddress)
			if err != nil {
				return fmt.Errorf("%w: %s", bridgeerrors.ErrTransient, err)
			}
			tx, err = s.sendWithNonce(ctx, event, nonce)
		}
		if err != nil {
			return err
		}
	}

	s.pending.Push(bridgetypes.PendingTransaction{
		RawBytes:        mustMarshalBinary(tx),
		TxHash:          tx.Hash(),
		Nonce:           nonce,
		TransferHash:    event.TransferHash,
		TransactionHash: event.TransactionHash,
		Amount:          event.Amount,
		Recipient:       event.Recipient,
		SubmittedAt:     time.Now(),
	})
	s.logger.Printf("submitted confirmTransfer for %s: tx %s nonce %d", event.TransferHash.Hex(), tx.Hash(), nonce)
	return nil
}

func (s *Sender) sendWithNonce(ctx context.Context, event bridgetypes.TransferEvent, nonce uint64) (*types.Transaction, error) {
	callData, err := contracts.HomeBridge().Pack(
		"confirmTransfer",
		[32]byte(event.TransferHash),
		event.TransactionHash,
		event.Amount,
		event.Recipient,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to pack confirmTransfer call: %s", bridgeerrors.ErrSetup, err)
	}

	tx := types.NewTransaction(nonce, s.homeBridgeAddr, big.NewInt(0), contracts.ConfirmTransferGasLimit, s.gasPrice, callData)

	signer := types.NewEIP155Signer(s.chainID)
	signedTx, err := types.SignTx(tx, signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign confirmTransfer: %s", bridgeerrors.ErrSetup, err)
	}

	if err := s.client.SendRawTransaction(ctx, signedTx); err != nil {
		if isNonceError(err) {
			return nil, fmt.Errorf("%w: %s", bridgeerrors.ErrNonceStale, err)
		}
		return nil, fmt.Errorf("%w: %s", bridgeerrors.ErrTransient, err)
	}

	return signedTx, nil
}

// Resubmit rebuilds a pending confirmTransfer at the same nonce with
// the gas price bumped by bumpPercent and resubmits it, satisfying
// internal/watcher.Resubmitter. The composition root wires this method
// value directly into the watcher.
func (s *Sender) Resubmit(ctx context.Context, tx bridgetypes.PendingTransaction, bumpPercent int) (bridgetypes.PendingTransaction, error) {
	callData, err := contracts.HomeBridge().Pack(
		"confirmTransfer",
		[32]byte(tx.TransferHash),
		tx.TransactionHash,
		tx.Amount,
		tx.Recipient,
	)
	if err != nil {
		return bridgetypes.PendingTransaction{}, fmt.Errorf("%w: failed to pack confirmTransfer call: %s", bridgeerrors.ErrSetup, err)
	}

	bumpedGasPrice := new(big.Int).Set(s.gasPrice)
	bumpedGasPrice.Mul(bumpedGasPrice, big.NewInt(int64(100+bumpPercent)))
	bumpedGasPrice.Div(bumpedGasPrice, big.NewInt(100))

	rawTx := types.NewTransaction(tx.Nonce, s.homeBridgeAddr, big.NewInt(0), contracts.ConfirmTransferGasLimit, bumpedGasPrice, callData)

	signedTx, err := types.SignTx(rawTx, types.NewEIP155Signer(s.chainID), s.privateKey)
	if err != nil {
		return bridgetypes.PendingTransaction{}, fmt.Errorf("%w: failed to sign resubmission: %s", bridgeerrors.ErrSetup, err)
	}

	if err := s.client.SendRawTransaction(ctx, signedTx); err != nil {
		return bridgetypes.PendingTransaction{}, fmt.Errorf("%w: %s", bridgeerrors.ErrTransient, err)
	}

	updated := tx
	updated.RawBytes = mustMarshalBinary(signedTx)
	updated.TxHash = signedTx.Hash()
	return updated, nil
}

func isNonceError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "already known") ||
		strings.Contains(msg, "replacement transaction underpriced")
}

func mustMarshalBinary(tx *types.Transaction) []byte {
	raw, err := tx.MarshalBinary()
	if err != nil {
		// tx was just signed successfully; a marshal failure here would be
		// an go-ethereum invariant violation, not a recoverable condition.
		panic("sender: failed to marshal signed transaction: " + err.Error())
	}
	return raw
}
