package ethereum

import (
	"context"
	"math/big"
)

// SwapEvent is a wPAW burn observed on chain. Amount is in the wrapped
// token's 18-decimal raw representation; Timestamp is block time in
// milliseconds.
type SwapEvent struct {
	EVMAddress  string
	Native      string
	AmountRaw   *big.Int
	Hash        string
	BlockNumber uint64
	Timestamp   int64
}

// TokenClient is the EVM chain capability the watcher depends on.
type TokenClient interface {
	// LatestBlock returns the current chain head number.
	LatestBlock(ctx context.Context) (uint64, error)
	// FilterSwapEvents returns SwapToNative events in [from, to].
	FilterSwapEvents(ctx context.Context, from, to uint64) ([]SwapEvent, error)
	// WatchSwapEvents streams live SwapToNative events into handler.
	// It blocks until the subscription fails or ctx is done.
	WatchSwapEvents(ctx context.Context, handler func(SwapEvent)) error
	// WaitConfirmations blocks until block has the configured confirmations.
	WaitConfirmations(ctx context.Context, block uint64) error
	// WrappedBalance reads the wPAW balance (raw) of an EVM address.
	WrappedBalance(ctx context.Context, evmAddress string) (*big.Int, error)
}
