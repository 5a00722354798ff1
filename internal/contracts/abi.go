// Package contracts holds the ABI fragments the bridge validator needs
// for the three contracts it consumes (the foreign ERC-20 token, the
// home bridge, and the validator proxy), embedded as package constants
// and parsed once at init, grounded on the teacher's CertenAnchorV3Events
// ABI-as-constant pattern in pkg/anchor/event_watcher.go.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// MinimalERC20ABI covers only the Transfer event, which is all the
// foreign-chain fetcher needs to decode.
const MinimalERC20ABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "from", "type": "address"},
			{"indexed": true, "name": "to", "type": "address"},
			{"indexed": false, "name": "value", "type": "uint256"}
		],
		"name": "Transfer",
		"type": "event"
	}
]`

// HomeBridgeABI covers confirmTransfer, validatorProxy, and the
// Confirmation / TransferCompleted events.
const HomeBridgeABI = `[
	{
		"inputs": [
			{"name": "transferHash", "type": "bytes32"},
			{"name": "transactionHash", "type": "bytes32"},
			{"name": "amount", "type": "uint256"},
			{"name": "recipient", "type": "address"}
		],
		"name": "confirmTransfer",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "validatorProxy",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "transferHash", "type": "bytes32"},
			{"indexed": true, "name": "validator", "type": "address"}
		],
		"name": "Confirmation",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "transferHash", "type": "bytes32"}
		],
		"name": "TransferCompleted",
		"type": "event"
	}
]`

// ValidatorProxyABI covers the membership query the status watcher polls.
const ValidatorProxyABI = `[
	{
		"inputs": [{"name": "validator", "type": "address"}],
		"name": "isValidator",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ConfirmTransferGasLimit is the hard-coded gas limit for confirmTransfer
// calls. It deliberately avoids an eth_estimateGas round trip, which
// would fail pre-signing because the contract's validator-membership
// assertion cannot see the sender address until the transaction is
// signed and submitted — see spec §4.4.
const ConfirmTransferGasLimit uint64 = 200_000

var (
	erc20ABI          abi.ABI
	homeBridgeABI     abi.ABI
	validatorProxyABI abi.ABI
)

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(MinimalERC20ABI))
	if err != nil {
		panic("contracts: invalid embedded ERC20 ABI: " + err.Error())
	}
	homeBridgeABI, err = abi.JSON(strings.NewReader(HomeBridgeABI))
	if err != nil {
		panic("contracts: invalid embedded home bridge ABI: " + err.Error())
	}
	validatorProxyABI, err = abi.JSON(strings.NewReader(ValidatorProxyABI))
	if err != nil {
		panic("contracts: invalid embedded validator proxy ABI: " + err.Error())
	}
}

// ERC20 returns the parsed minimal ERC-20 ABI.
func ERC20() abi.ABI { return erc20ABI }

// HomeBridge returns the parsed home bridge ABI.
func HomeBridge() abi.ABI { return homeBridgeABI }

// ValidatorProxy returns the parsed validator proxy ABI.
func ValidatorProxy() abi.ABI { return validatorProxyABI }
