// Package contracts wraps the on-chain wPAW token. The binding is
// hand-maintained: the bridge only reads balances and decodes
// SwapToNative burn events, so a full generated binding is not needed.
package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// wrappedPAWABI covers the subset of the wPAW contract the bridge uses.
const wrappedPAWABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "from", "type": "address"},
			{"indexed": false, "internalType": "string", "name": "nativeAddress", "type": "string"},
			{"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "SwapToNative",
		"type": "event"
	},
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// SwapToNativeEvent is an emitted wPAW burn targeting a native address.
type SwapToNativeEvent struct {
	From          common.Address
	NativeAddress string
	Amount        *big.Int
	Raw           types.Log
}

// WrappedPAW is the contract handle.
type WrappedPAW struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

// NewWrappedPAW binds the wPAW contract at the given address.
func NewWrappedPAW(address common.Address, backend bind.ContractBackend) (*WrappedPAW, error) {
	parsed, err := abi.JSON(strings.NewReader(wrappedPAWABI))
	if err != nil {
		return nil, fmt.Errorf("parse wPAW abi: %w", err)
	}
	return &WrappedPAW{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address returns the bound contract address.
func (w *WrappedPAW) Address() common.Address {
	return w.address
}

// SwapToNativeTopic returns the event signature hash for log filters.
func (w *WrappedPAW) SwapToNativeTopic() common.Hash {
	return w.abi.Events["SwapToNative"].ID
}

// BalanceOf reads the wPAW balance of an account.
func (w *WrappedPAW) BalanceOf(opts *bind.CallOpts, account common.Address) (*big.Int, error) {
	var out []any
	err := w.contract.Call(opts, &out, "balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// ParseSwapToNative decodes a SwapToNative log.
func (w *WrappedPAW) ParseSwapToNative(log types.Log) (*SwapToNativeEvent, error) {
	event := new(SwapToNativeEvent)
	if err := w.contract.UnpackLog(event, "SwapToNative", log); err != nil {
		return nil, fmt.Errorf("unpack SwapToNative: %w", err)
	}
	event.Raw = log
	return event, nil
}
