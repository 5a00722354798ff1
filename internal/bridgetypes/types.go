// Package bridgetypes defines the wire types shared across the bridge
// validator's fetcher, recorder, planner, sender and watcher stages.
package bridgetypes

import (
	"encoding/binary"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransferHash is the 32-byte identifier binding a Transfer, Confirmation
// and Completion log together across chains.
type TransferHash [32]byte

// Hex returns the 0x-prefixed hex encoding of the hash.
func (h TransferHash) Hex() string {
	return common.Hash(h).Hex()
}

// ComputeTransferHash derives a TransferHash from the foreign transaction
// hash and log index of the Transfer event, exactly as the source's
// compute_transfer_hash does: keccak256(transactionHash || logIndex).
func ComputeTransferHash(transactionHash common.Hash, logIndex uint) TransferHash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(logIndex))
	return TransferHash(crypto.Keccak256Hash(transactionHash.Bytes(), buf[:]))
}

// TransferEvent is the foreign-chain ERC-20 Transfer log that deposited
// funds into the bridge escrow.
type TransferEvent struct {
	TransferHash    TransferHash
	TransactionHash common.Hash
	LogIndex        uint
	BlockNumber     uint64
	Amount          *big.Int

	// Recipient is the `from` address of the ERC-20 Transfer — the
	// depositor, who is the intended recipient of the mirror asset on
	// the home chain. This encodes the bridge's deposit convention: the
	// transfer's `to` is always the foreign bridge contract, so the
	// only useful identity carried by the log is the sender.
	Recipient common.Address

	// MatchesForeignBridge records whether this event's `to` argument
	// equalled the configured foreign bridge address at fetch time, so
	// the Sender can sanity-check it without a second RPC round trip.
	MatchesForeignBridge bool
}

// ConfirmationEvent is a home-chain Confirmation log emitted by this
// validator's own confirmTransfer call.
type ConfirmationEvent struct {
	TransferHash TransferHash
	BlockNumber  uint64
	LogIndex     uint
}

// CompletionEvent is a home-chain TransferCompleted log, emitted once a
// quorum of validators has confirmed a transfer.
type CompletionEvent struct {
	TransferHash TransferHash
	BlockNumber  uint64
	LogIndex     uint
}

// PendingTransaction is a signed confirmTransfer transaction awaiting
// inclusion and burial below the reorg horizon. It carries the original
// confirmTransfer call arguments (not just the raw signed bytes) so the
// watcher can ask the Sender to rebuild and resubmit it at a bumped gas
// price without re-deriving anything from the recorder.
type PendingTransaction struct {
	RawBytes        []byte
	TxHash          common.Hash
	Nonce           uint64
	TransferHash    TransferHash
	TransactionHash common.Hash
	Amount          *big.Int
	Recipient       common.Address
	SubmittedAt     time.Time

	// Attempts counts resubmissions at a bumped gas price after the
	// transaction sat unmined past the eviction grace period. It starts
	// at 0 for the original submission.
	Attempts int
}

// ChainRole distinguishes the two chains a fetcher can be attached to,
// used only for logging and metrics labels.
type ChainRole string

const (
	ChainRoleForeign ChainRole = "foreign"
	ChainRoleHome    ChainRole = "home"
)

// SyncKind identifies which of the Recorder's two watermarks an
// apply_sync_completed call advances.
type SyncKind string

const (
	SyncKindConfirmation SyncKind = "confirmation"
	SyncKindCompletion   SyncKind = "completion"
)
