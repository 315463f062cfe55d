package pawchain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Websocket frames follow the node's confirmation topic: the caller
// subscribes with an account filter and receives one message per
// confirmed block touching those accounts.

type subscribeFrame struct {
	Action  string           `json:"action"`
	Topic   string           `json:"topic"`
	Options subscribeOptions `json:"options"`
}

type subscribeOptions struct {
	Accounts []string `json:"accounts"`
}

type confirmationFrame struct {
	Topic   string `json:"topic"`
	Message struct {
		Account string `json:"account"`
		Amount  string `json:"amount"`
		Hash    string `json:"hash"`
		Block   struct {
			Subtype       string `json:"subtype"`
			LinkAsAccount string `json:"link_as_account"`
		} `json:"block"`
	} `json:"message"`
}

func (c *nodeClient) SubscribeConfirmations(ctx context.Context, accounts []string, handler func(Confirmation)) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.WSUrl, nil)
	if err != nil {
		return fmt.Errorf("dial node websocket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	err = conn.WriteJSON(subscribeFrame{
		Action:  "subscribe",
		Topic:   "confirmation",
		Options: subscribeOptions{Accounts: accounts},
	})
	if err != nil {
		return fmt.Errorf("subscribe confirmations: %w", err)
	}

	c.logger.Info("Subscribed to node confirmations", zap.Strings("accounts", accounts))

	// Unblock ReadMessage when the caller cancels.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read confirmation: %w", err)
		}

		var frame confirmationFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.Warn("Malformed websocket frame", zap.Error(err))
			continue
		}
		if frame.Topic != "confirmation" || frame.Message.Block.Subtype != "send" {
			continue
		}

		amount, ok := new(big.Int).SetString(frame.Message.Amount, 10)
		if !ok {
			c.logger.Warn("Malformed confirmation amount", zap.String("amount", frame.Message.Amount))
			continue
		}

		handler(Confirmation{
			Sender:    frame.Message.Account,
			Receiver:  frame.Message.Block.LinkAsAccount,
			AmountRaw: amount,
			Hash:      frame.Message.Hash,
		})
	}
}
