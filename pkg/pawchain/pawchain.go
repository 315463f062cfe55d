// Package pawchain talks to the PAW node: websocket confirmations for
// the hot wallet, pending receivables, and outgoing sends.
package pawchain

import (
	"context"
	"math/big"
)

// Confirmation is a confirmed send block observed on the network.
type Confirmation struct {
	Sender    string
	Receiver  string
	AmountRaw *big.Int
	Hash      string
}

// Receivable is a pending inbound block that has not been pocketed yet.
type Receivable struct {
	Hash      string
	Source    string
	AmountRaw *big.Int
}

// Client is the PAW node capability the bridge depends on.
type Client interface {
	// HotWallet returns the custodial deposit address.
	HotWallet() string
	// ColdWallet returns the custodial bulk-storage address.
	ColdWallet() string

	// Send transfers units of PAW from the hot wallet and returns the block hash.
	Send(ctx context.Context, destination string, units *big.Int) (string, error)
	// Receive pockets a pending block on the hot wallet. Safe on replay.
	Receive(ctx context.Context, hash string) error
	// Receivables lists pending inbound blocks on the hot wallet.
	Receivables(ctx context.Context) ([]Receivable, error)
	// Balance returns the confirmed balance of an account in atomic units.
	Balance(ctx context.Context, account string) (*big.Int, error)

	// SubscribeConfirmations streams confirmations for the given accounts
	// into handler. It blocks until the socket fails or ctx is done.
	SubscribeConfirmations(ctx context.Context, accounts []string, handler func(Confirmation)) error
}
