package api

import (
	"github.com/pawbridge/paw-middleware/pkg/ledger"
	"github.com/pawbridge/paw-middleware/pkg/pawchain"
)

// Amounts cross the wire as decimal PAW strings; atomic units stay an
// internal representation.

type depositItem struct {
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
}

type withdrawalItem struct {
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
}

type swapToWrappedItem struct {
	Amount     string `json:"amount"`
	Timestamp  int64  `json:"timestamp"`
	Receipt    string `json:"receipt"`
	UUID       int64  `json:"uuid"`
	EVMAddress string `json:"evmAddress"`
}

type swapToNativeItem struct {
	Amount     string `json:"amount"`
	Timestamp  int64  `json:"timestamp"`
	Hash       string `json:"hash"`
	EVMAddress string `json:"evmAddress"`
}

type historyResponse struct {
	Deposits      []depositItem       `json:"deposits"`
	Withdrawals   []withdrawalItem    `json:"withdrawals"`
	Swaps         []swapToWrappedItem `json:"swaps"`
	SwapsToNative []swapToNativeItem  `json:"swapsToNative"`
}

func toHistoryResponse(h *ledger.History) historyResponse {
	resp := historyResponse{
		Deposits:      make([]depositItem, 0, len(h.Deposits)),
		Withdrawals:   make([]withdrawalItem, 0, len(h.Withdrawals)),
		Swaps:         make([]swapToWrappedItem, 0, len(h.SwapsToWrapped)),
		SwapsToNative: make([]swapToNativeItem, 0, len(h.SwapsToNative)),
	}

	for _, d := range h.Deposits {
		resp.Deposits = append(resp.Deposits, depositItem{
			Amount:    pawchain.FormatAmount(d.Amount),
			Timestamp: d.Timestamp,
			Hash:      d.Hash,
		})
	}
	for _, w := range h.Withdrawals {
		resp.Withdrawals = append(resp.Withdrawals, withdrawalItem{
			Amount:    pawchain.FormatAmount(w.Amount),
			Timestamp: w.Timestamp,
			Hash:      w.Hash,
		})
	}
	for _, s := range h.SwapsToWrapped {
		resp.Swaps = append(resp.Swaps, swapToWrappedItem{
			Amount:     pawchain.FormatAmount(s.Amount),
			Timestamp:  s.Timestamp,
			Receipt:    s.Receipt,
			UUID:       s.UUID,
			EVMAddress: s.EVMAddress,
		})
	}
	for _, s := range h.SwapsToNative {
		resp.SwapsToNative = append(resp.SwapsToNative, swapToNativeItem{
			Amount:     pawchain.FormatAmount(s.Amount),
			Timestamp:  s.Timestamp,
			Hash:       s.Hash,
			EVMAddress: s.EVMAddress,
		})
	}
	return resp
}
