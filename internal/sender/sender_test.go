package sender

import (
	"context"
	"errors"
	"io"
	"log"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trustlines-network/bridge-validator/internal/bridgetypes"
	"github.com/trustlines-network/bridge-validator/internal/queue"
)

type fakeChainClient struct {
	nonce       uint64
	sendErrs    []error
	sendCalls   int
	lastSentTx  *types.Transaction
}

func (f *fakeChainClient) PendingNonceAt(ctx context.Context, address common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeChainClient) SendRawTransaction(ctx context.Context, tx *types.Transaction) error {
	f.lastSentTx = tx
	if f.sendCalls < len(f.sendErrs) {
		err := f.sendErrs[f.sendCalls]
		f.sendCalls++
		return err
	}
	f.sendCalls++
	return nil
}

const testPrivateKeyHex = "fad9c8855b740a0b7ed4c221dbad0f33a83a49cad6b3fe8d5817ac83d38b6a0"

func newTestSender(t *testing.T, client chainClient) (*Sender, chan bridgetypes.TransferEvent) {
	t.Helper()
	tasks := make(chan bridgetypes.TransferEvent, 4)
	pending := queue.New()
	logger := log.New(io.Discard, "", 0)

	s, err := New(client, common.HexToAddress("0xB01D6E"), testPrivateKeyHex, big.NewInt(1), big.NewInt(1_000_000_000), tasks, pending, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, tasks
}

func sampleEvent() bridgetypes.TransferEvent {
	return bridgetypes.TransferEvent{
		TransferHash:         bridgetypes.ComputeTransferHash(common.HexToHash("0xaa"), 0),
		TransactionHash:      common.HexToHash("0xaa"),
		Amount:               big.NewInt(1000),
		Recipient:            common.HexToAddress("0xA11CE"),
		MatchesForeignBridge: true,
	}
}

func TestSenderConfirmSubmitsAndEnqueues(t *testing.T) {
	client := &fakeChainClient{nonce: 7}
	s, _ := newTestSender(t, client)

	event := sampleEvent()
	if err := s.confirm(context.Background(), event); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if client.sendCalls != 1 {
		t.Fatalf("expected 1 send call, got %d", client.sendCalls)
	}
	if s.pending.Len() != 1 {
		t.Fatalf("expected 1 pending tx, got %d", s.pending.Len())
	}
	pendingTx, ok := s.pending.Peek()
	if !ok {
		t.Fatal("expected a pending tx")
	}
	if pendingTx.TransferHash != event.TransferHash {
		t.Errorf("pending tx transfer hash mismatch")
	}
	if pendingTx.Nonce != 7 {
		t.Errorf("expected nonce 7, got %d", pendingTx.Nonce)
	}
}

func TestSenderDropsMismatchedRecipient(t *testing.T) {
	client := &fakeChainClient{nonce: 1}
	s, _ := newTestSender(t, client)

	event := sampleEvent()
	event.MatchesForeignBridge = false

	if err := s.confirm(context.Background(), event); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if client.sendCalls != 0 {
		t.Errorf("expected no send attempt for mismatched recipient, got %d", client.sendCalls)
	}
	if s.pending.Len() != 0 {
		t.Errorf("expected nothing enqueued for mismatched recipient")
	}
}

func TestSenderRetriesOnceOnStaleNonce(t *testing.T) {
	client := &fakeChainClient{
		nonce:    3,
		sendErrs: []error{errors.New("nonce too low"), nil},
	}
	s, _ := newTestSender(t, client)

	if err := s.confirm(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if client.sendCalls != 2 {
		t.Fatalf("expected 2 send attempts after one nonce-stale retry, got %d", client.sendCalls)
	}
}

func TestSenderFatalOnUnknownSendError(t *testing.T) {
	client := &fakeChainClient{
		nonce:    3,
		sendErrs: []error{errors.New("execution reverted")},
	}
	s, _ := newTestSender(t, client)

	err := s.confirm(context.Background(), sampleEvent())
	if err == nil {
		t.Fatal("expected an error for a non-retryable send failure")
	}
}

func TestSenderAddressMatchesPrivateKey(t *testing.T) {
	client := &fakeChainClient{}
	s, _ := newTestSender(t, client)

	privateKey, err := crypto.HexToECDSA(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("parse test key: %v", err)
	}
	want := crypto.PubkeyToAddress(privateKey.PublicKey)
	if s.Address() != want {
		t.Errorf("Address() = %s, want %s", s.Address(), want)
	}
}
