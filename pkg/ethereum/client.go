package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/pawbridge/paw-middleware/pkg/config"
	"github.com/pawbridge/paw-middleware/pkg/ethereum/contracts"
)

// Client implements TokenClient over an EVM chain RPC endpoint, with an
// optional websocket endpoint for live event streaming.
type Client struct {
	config   *config.EthereumConfig
	client   *ethclient.Client
	wsClient *ethclient.Client
	token    *contracts.WrappedPAW
	logger   *zap.Logger
}

// NewClient connects to the EVM chain and binds the wPAW contract.
func NewClient(cfg *config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM RPC: %w", err)
	}

	var wsClient *ethclient.Client
	if cfg.WSUrl != "" {
		wsClient, err = ethclient.Dial(cfg.WSUrl)
		if err != nil {
			logger.Warn("Failed to connect to EVM WebSocket, falling back to polling",
				zap.Error(err))
		}
	}

	tokenAddress := common.HexToAddress(cfg.WrappedToken)
	token, err := contracts.NewWrappedPAW(tokenAddress, client)
	if err != nil {
		return nil, fmt.Errorf("failed to bind wPAW contract: %w", err)
	}

	logger.Info("Connected to EVM chain",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("wrapped_token", tokenAddress.Hex()))

	return &Client{
		config:   cfg,
		client:   client,
		wsClient: wsClient,
		token:    token,
		logger:   logger,
	}, nil
}

// Close closes the underlying connections.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
	if c.wsClient != nil {
		c.wsClient.Close()
	}
}

// LatestBlock returns the current chain head number.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// FilterSwapEvents returns SwapToNative events emitted in [from, to].
func (c *Client) FilterSwapEvents(ctx context.Context, from, to uint64) ([]SwapEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.token.Address()},
		Topics:    [][]common.Hash{{c.token.SwapToNativeTopic()}},
	}

	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter swap logs: %w", err)
	}

	events := make([]SwapEvent, 0, len(logs))
	for _, log := range logs {
		event, err := c.toSwapEvent(ctx, log)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// WatchSwapEvents streams live SwapToNative events. It prefers the
// websocket subscription and falls back to polling the HTTP endpoint.
func (c *Client) WatchSwapEvents(ctx context.Context, handler func(SwapEvent)) error {
	if c.wsClient != nil {
		return c.subscribeSwapEvents(ctx, handler)
	}
	return c.pollSwapEvents(ctx, handler)
}

func (c *Client) subscribeSwapEvents(ctx context.Context, handler func(SwapEvent)) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.token.Address()},
		Topics:    [][]common.Hash{{c.token.SwapToNativeTopic()}},
	}

	logs := make(chan types.Log, 64)
	sub, err := c.wsClient.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to swap logs: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Subscribed to SwapToNative events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("swap log subscription: %w", err)
		case log := <-logs:
			event, err := c.toSwapEvent(ctx, log)
			if err != nil {
				c.logger.Error("Failed to decode swap log",
					zap.String("tx_hash", log.TxHash.Hex()), zap.Error(err))
				continue
			}
			handler(event)
		}
	}
}

func (c *Client) pollSwapEvents(ctx context.Context, handler func(SwapEvent)) error {
	c.logger.Info("Polling for SwapToNative events",
		zap.Duration("interval", c.config.PollingInterval))

	current, err := c.LatestBlock(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(c.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			latest, err := c.LatestBlock(ctx)
			if err != nil {
				c.logger.Warn("Failed to get latest block", zap.Error(err))
				continue
			}
			if latest <= current {
				continue
			}

			events, err := c.FilterSwapEvents(ctx, current+1, latest)
			if err != nil {
				c.logger.Warn("Failed to filter swap events", zap.Error(err))
				continue
			}
			for _, event := range events {
				handler(event)
			}
			current = latest
		}
	}
}

// WaitConfirmations blocks until the chain head is the configured number
// of blocks past block.
func (c *Client) WaitConfirmations(ctx context.Context, block uint64) error {
	target := block + c.config.ConfirmationBlocks

	for {
		latest, err := c.LatestBlock(ctx)
		if err != nil {
			return err
		}
		if latest >= target {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.PollingInterval):
		}
	}
}

// WrappedBalance reads the wPAW balance (raw) of an EVM address.
func (c *Client) WrappedBalance(ctx context.Context, evmAddress string) (*big.Int, error) {
	return c.token.BalanceOf(&bind.CallOpts{Context: ctx}, common.HexToAddress(evmAddress))
}

func (c *Client) toSwapEvent(ctx context.Context, log types.Log) (SwapEvent, error) {
	parsed, err := c.token.ParseSwapToNative(log)
	if err != nil {
		return SwapEvent{}, err
	}

	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(log.BlockNumber))
	if err != nil {
		return SwapEvent{}, fmt.Errorf("failed to get block header %d: %w", log.BlockNumber, err)
	}

	return SwapEvent{
		EVMAddress:  parsed.From.Hex(),
		Native:      parsed.NativeAddress,
		AmountRaw:   parsed.Amount,
		Hash:        log.TxHash.Hex(),
		BlockNumber: log.BlockNumber,
		Timestamp:   int64(header.Time) * 1000,
	}, nil
}
