package pawchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/creasty/defaults"
	"go.uber.org/zap"

	"github.com/pawbridge/paw-middleware/pkg/config"
)

// Options tune the node client.
type Options struct {
	RequestTimeout   time.Duration `default:"10s"`
	HandshakeTimeout time.Duration `default:"10s"`
	ReceivableCount  int           `default:"100"`
}

// nodeClient implements Client over the PAW node's JSON RPC and websocket.
type nodeClient struct {
	cfg    *config.PawChainConfig
	opts   Options
	logger *zap.Logger
	http   *http.Client
}

// NewClient creates a PAW node client.
func NewClient(cfg *config.PawChainConfig, logger *zap.Logger, opts ...func(*Options)) (Client, error) {
	options := Options{}
	if err := defaults.Set(&options); err != nil {
		return nil, fmt.Errorf("apply default options: %w", err)
	}
	for _, opt := range opts {
		opt(&options)
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("pawchain rpc_url is required")
	}

	return &nodeClient{
		cfg:    cfg,
		opts:   options,
		logger: logger,
		http:   &http.Client{Timeout: options.RequestTimeout},
	}, nil
}

func (c *nodeClient) HotWallet() string  { return c.cfg.HotWallet }
func (c *nodeClient) ColdWallet() string { return c.cfg.ColdWallet }

// rpc posts an action to the node and decodes the reply into out.
func (c *nodeClient) rpc(ctx context.Context, action map[string]any, out any) error {
	body, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("node rpc %s: %w", action["action"], err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node rpc %s: unexpected status %d", action["action"], resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read rpc response: %w", err)
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		return fmt.Errorf("node rpc %s: %s", action["action"], envelope.Error)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	return nil
}

func (c *nodeClient) Send(ctx context.Context, destination string, units *big.Int) (string, error) {
	var resp struct {
		Block string `json:"block"`
	}
	err := c.rpc(ctx, map[string]any{
		"action":      "send",
		"wallet":      c.cfg.WalletSeed,
		"source":      c.cfg.HotWallet,
		"destination": destination,
		"amount":      RawFromUnits(units).String(),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Block == "" {
		return "", fmt.Errorf("node send: empty block hash")
	}
	return resp.Block, nil
}

func (c *nodeClient) Receive(ctx context.Context, hash string) error {
	var resp struct {
		Block string `json:"block"`
	}
	return c.rpc(ctx, map[string]any{
		"action":  "receive",
		"wallet":  c.cfg.WalletSeed,
		"account": c.cfg.HotWallet,
		"block":   hash,
	}, &resp)
}

func (c *nodeClient) Receivables(ctx context.Context) ([]Receivable, error) {
	var resp struct {
		Blocks map[string]struct {
			Amount string `json:"amount"`
			Source string `json:"source"`
		} `json:"blocks"`
	}
	err := c.rpc(ctx, map[string]any{
		"action":  "receivable",
		"account": c.cfg.HotWallet,
		"count":   c.opts.ReceivableCount,
		"source":  true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]Receivable, 0, len(resp.Blocks))
	for hash, block := range resp.Blocks {
		raw, ok := new(big.Int).SetString(block.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("malformed receivable amount %q", block.Amount)
		}
		out = append(out, Receivable{Hash: hash, Source: block.Source, AmountRaw: raw})
	}
	return out, nil
}

func (c *nodeClient) Balance(ctx context.Context, account string) (*big.Int, error) {
	var resp struct {
		Balance string `json:"balance"`
	}
	err := c.rpc(ctx, map[string]any{
		"action":  "account_balance",
		"account": account,
	}, &resp)
	if err != nil {
		return nil, err
	}

	raw, ok := new(big.Int).SetString(resp.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("malformed balance %q", resp.Balance)
	}
	return UnitsFromRaw(raw), nil
}
