// Package api exposes the bridge over HTTP: user operations, balance
// and history reads, and the per-wallet server-sent event stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/pawbridge/paw-middleware/pkg/app/errors"
	apphttp "github.com/pawbridge/paw-middleware/pkg/app/http"
	"github.com/pawbridge/paw-middleware/pkg/ledger"
	"github.com/pawbridge/paw-middleware/pkg/notify"
	"github.com/pawbridge/paw-middleware/pkg/pawchain"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// Service is the bridge capability the HTTP layer depends on.
type Service interface {
	Claim(ctx context.Context, native, evmAddress, signature string) error
	GetBalance(ctx context.Context, native string) (*big.Int, error)
	HotWalletAddress() string
	RequestWithdrawal(ctx context.Context, native, amount, evmAddress, signature string) error
	RequestSwap(ctx context.Context, native, amount, evmAddress, signature string) error
	PendingWithdrawalsAmount(ctx context.Context) (*big.Int, error)
	History(ctx context.Context, evmAddress, native string) (*ledger.History, error)
}

// Subscriber hands out per-wallet event streams.
type Subscriber interface {
	Subscribe(native string) (<-chan notify.Event, func())
}

// Handler serves the bridge HTTP API.
type Handler struct {
	service  Service
	events   Subscriber
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(service Service, events Subscriber, logger *zap.Logger) *Handler {
	return &Handler{
		service:  service,
		events:   events,
		validate: validator.New(),
		logger:   logger,
	}
}

// Routes mounts the request/response API on a chi router. The event
// stream is mounted separately so it can live outside request timeouts.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", apphttp.HandleError(h.health))
	r.Get("/deposits/native/wallet", apphttp.HandleError(h.depositWallet))
	r.Get("/deposits/native/{addr}", apphttp.HandleError(h.balance))
	r.Post("/withdrawals/native", apphttp.HandleError(h.withdraw))
	r.Get("/withdrawals/pending", apphttp.HandleError(h.pendingWithdrawals))
	r.Post("/claim", apphttp.HandleError(h.claim))
	r.Post("/swap", apphttp.HandleError(h.swap))
	r.Get("/history/{evm}/{native}", apphttp.HandleError(h.history))
}

// StreamRoutes mounts the long-lived server-sent event endpoint.
func (h *Handler) StreamRoutes(r chi.Router) {
	r.Get("/events/{native}", apphttp.HandleError(h.eventStream))
}

type claimRequest struct {
	PawAddress        string `json:"pawAddress" validate:"required"`
	BlockchainAddress string `json:"blockchainAddress" validate:"required"`
	Sig               string `json:"sig" validate:"required"`
}

type transferRequest struct {
	Paw        string `json:"paw" validate:"required"`
	Amount     string `json:"amount" validate:"required"`
	Blockchain string `json:"blockchain" validate:"required"`
	Sig        string `json:"sig" validate:"required"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (h *Handler) depositWallet(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]string{"address": h.service.HotWalletAddress()})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) error {
	native := chi.URLParam(r, "addr")

	balance, err := h.service.GetBalance(r.Context(), native)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"balance": pawchain.FormatAmount(balance)})
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) error {
	var req claimRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	if err := h.service.Claim(r.Context(), req.PawAddress, req.BlockchainAddress, req.Sig); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) error {
	var req transferRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	if err := h.service.RequestWithdrawal(r.Context(), req.Paw, req.Amount, req.Blockchain, req.Sig); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, map[string]string{"status": "OK"})
}

func (h *Handler) pendingWithdrawals(w http.ResponseWriter, r *http.Request) error {
	amount, err := h.service.PendingWithdrawalsAmount(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"amount": pawchain.FormatAmount(amount)})
}

func (h *Handler) swap(w http.ResponseWriter, r *http.Request) error {
	var req transferRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	if err := h.service.RequestSwap(r.Context(), req.Paw, req.Amount, req.Blockchain, req.Sig); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, map[string]string{"status": "OK"})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) error {
	evm := chi.URLParam(r, "evm")
	native := chi.URLParam(r, "native")

	history, err := h.service.History(r.Context(), evm, native)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, toHistoryResponse(history))
}

// eventStream pushes the wallet's operation outcomes as server-sent
// events, with periodic heartbeats so idle connections stay open.
func (h *Handler) eventStream(w http.ResponseWriter, r *http.Request) error {
	native := chi.URLParam(r, "native")

	flusher, ok := w.(http.Flusher)
	if !ok {
		return apperrors.GeneralError(fmt.Errorf("streaming unsupported by writer"))
	}

	events, cancel := h.events.Subscribe(native)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event := <-events:
			data, err := json.Marshal(event.Data)
			if err != nil {
				h.logger.Error("Failed to encode event", zap.String("id", event.ID), zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Kind, data)
			flusher.Flush()
		}
	}
}

func (h *Handler) decode(r *http.Request, into any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(into); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON body")
	}
	if err := h.validate.Struct(into); err != nil {
		return apperrors.BadRequestError(err, "missing or invalid fields")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}
