// Package chain wraps go-ethereum's ethclient with the small surface the
// bridge validator needs: head polling, log filtering, nonce/balance
// queries, and raw transaction submission. One Client is shared across
// every task attached to a given chain (foreign or home), unlike the
// teacher's habit of dialing a fresh *ethclient.Client per consumer.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is a thin, role-labelled wrapper around *ethclient.Client.
type Client struct {
	role string
	rpc  *ethclient.Client
}

// Dial connects to a chain's JSON-RPC endpoint. role is used only for
// log messages ("foreign", "home").
func Dial(ctx context.Context, role, url string) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s chain at %s: %w", role, url, err)
	}
	return &Client{role: role, rpc: rpc}, nil
}

// Role returns the chain role label ("foreign" or "home").
func (c *Client) Role() string { return c.role }

// HeadNumber returns the current block height.
func (c *Client) HeadNumber(ctx context.Context) (uint64, error) {
	n, err := c.rpc.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get %s chain head: %w", c.role, err)
	}
	return n, nil
}

// FilterLogs fetches logs matching the query, delegating straight to
// eth_getLogs.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.rpc.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter %s chain logs: %w", c.role, err)
	}
	return logs, nil
}

// PendingNonceAt returns the next nonce to use for address, including
// transactions still in the mempool.
func (c *Client) PendingNonceAt(ctx context.Context, address common.Address) (uint64, error) {
	nonce, err := c.rpc.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("failed to get %s chain nonce: %w", c.role, err)
	}
	return nonce, nil
}

// ChainID returns the chain's EIP-155 chain ID, used by the sender to
// build a replay-protected signer.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s chain ID: %w", c.role, err)
	}
	return id, nil
}

// BalanceAt returns the ETH balance of address at the latest block.
func (c *Client) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := c.rpc.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s chain balance: %w", c.role, err)
	}
	return balance, nil
}

// CodeAt returns the contract bytecode at address, used to sanity-check
// that a configured contract address is actually deployed.
func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	code, err := c.rpc.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s chain code: %w", c.role, err)
	}
	return code, nil
}

// CallContract makes a read-only contract call.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	out, err := c.rpc.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("%s chain contract call failed: %w", c.role, err)
	}
	return out, nil
}

// CallContractData is a convenience wrapper over CallContract for
// callers that only have packed calldata and a target address, such as
// internal/validatorwatch's isValidator poll.
func (c *Client) CallContractData(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data})
}

// SendRawTransaction submits a signed transaction.
func (c *Client) SendRawTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.rpc.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to submit %s chain transaction: %w", c.role, err)
	}
	return nil
}

// TransactionReceipt returns the receipt for txHash, or (nil, nil) if the
// transaction is not yet known to the node (ethereum.NotFound).
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.rpc.TransactionReceipt(ctx, txHash)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s chain receipt: %w", c.role, err)
	}
	return receipt, nil
}

// Underlying exposes the raw ethclient for callers that need ABI
// bindings (bind.ContractBackend) beyond this wrapper's surface.
func (c *Client) Underlying() *ethclient.Client {
	return c.rpc
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Backoff implements the exponential backoff policy every transient-RPC
// retry loop in this daemon shares: base 5s, doubling, capped at 120s.
type Backoff struct {
	attempt int
}

const (
	backoffBase = 5 * time.Second
	backoffCap  = 120 * time.Second
)

// Next returns the delay to sleep before the next retry and advances the
// internal attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := backoffBase << b.attempt
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}
	b.attempt++
	return delay
}

// Reset clears the attempt counter after a successful call.
func (b *Backoff) Reset() {
	b.attempt = 0
}
