// Package bridge implements app.Runner for the bridge process: it wires
// the ledger, queue, chain clients and watchers, and serves the HTTP API.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pawbridge/paw-middleware/pkg/api"
	"github.com/pawbridge/paw-middleware/pkg/app/httpserver"
	"github.com/pawbridge/paw-middleware/pkg/blacklist"
	"github.com/pawbridge/paw-middleware/pkg/bridge"
	"github.com/pawbridge/paw-middleware/pkg/config"
	"github.com/pawbridge/paw-middleware/pkg/ethereum"
	"github.com/pawbridge/paw-middleware/pkg/ledger"
	"github.com/pawbridge/paw-middleware/pkg/notify"
	"github.com/pawbridge/paw-middleware/pkg/pawchain"
	"github.com/pawbridge/paw-middleware/pkg/pgutil"
	"github.com/pawbridge/paw-middleware/pkg/queue"
)

const (
	defaultGracefulShutdownTimeout = 30 * time.Second
	defaultHTTPMiddlewareTimeout   = 60 * time.Second
	defaultHTTPReadTimeout         = 15 * time.Second
	defaultHTTPIdleTimeout         = 60 * time.Second
)

// Server holds configuration for the bridge process.
type Server struct {
	cfg   *config.Config
	ready atomic.Bool
}

// NewServer initializes a new bridge Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts the watchers, queue workers and the HTTP server. It blocks
// until an OS shutdown signal is received or a fatal error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting PAW Bridge")

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect bridge db: %w", err)
	}
	defer func() { _ = db.Close() }()

	store := ledger.NewStore(db, cfg.Bridge.ClaimTTL)

	node, err := pawchain.NewClient(&cfg.PawChain, logger)
	if err != nil {
		return fmt.Errorf("initialize paw node client: %w", err)
	}

	ethClient, err := ethereum.NewClient(&cfg.Ethereum, logger)
	if err != nil {
		return fmt.Errorf("initialize ethereum client: %w", err)
	}
	defer ethClient.Close()

	signer, err := bridge.NewReceiptSigner(cfg.Ethereum.SignerPrivateKey, cfg.Ethereum.ChainID)
	if err != nil {
		return fmt.Errorf("initialize receipt signer: %w", err)
	}
	logger.Info("Mint receipts signed by", zap.String("address", signer.Address()))

	oracle := blacklist.NewOracle(cfg.Blacklist, logger)
	bus := notify.NewBus()
	jobs := queue.New(db, cfg.Queue, logger)

	service, err := bridge.NewService(store, jobs, node, ethClient, oracle, signer, bus, cfg.Bridge, logger)
	if err != nil {
		return fmt.Errorf("initialize bridge service: %w", err)
	}

	if err := s.seedScanCursor(ctx, store); err != nil {
		return err
	}
	evmWatcher := ethereum.NewWatcher(ethClient, jobs, store, cfg.Ethereum.ScanBatchSize, cfg.Ethereum.ConfirmationBlocks, logger)

	jobs.RegisterProcessor(queue.TopicDeposit, service.HandleDepositJob)
	jobs.RegisterProcessor(queue.TopicWithdrawal, service.HandleWithdrawalJob)
	jobs.RegisterProcessor(queue.TopicSwapToWrapped, service.HandleSwapToWrappedJob)
	jobs.RegisterProcessor(queue.TopicSwapToNative, service.HandleSwapToNativeJob)
	jobs.RegisterProcessor(queue.TopicEVMScan, evmWatcher.HandleScanJob)
	jobs.AddJobListener(service)

	jobs.Start(ctx)
	defer jobs.Stop()

	pawWatcher := pawchain.NewWatcher(node, jobs, cfg.PawChain.SweepInterval, logger)
	pawWatcher.Start(ctx)
	defer pawWatcher.Stop()

	if err := evmWatcher.Start(ctx); err != nil {
		return fmt.Errorf("start evm watcher: %w", err)
	}
	defer evmWatcher.Stop()

	s.ready.Store(true)

	router := s.newRouter(api.NewHandler(service, bus, logger), logger)
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	// WriteTimeout stays unset: it would sever the event streams. The
	// chi timeout middleware bounds the regular endpoints instead.
	httpServer := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: defaultHTTPReadTimeout,
		IdleTimeout: defaultHTTPIdleTimeout,
	}

	return httpserver.ServeAndWait(ctx, logger, httpServer, defaultGracefulShutdownTimeout)
}

// seedScanCursor initialises the scan cursor on first boot so catch-up
// does not walk the chain from genesis.
func (s *Server) seedScanCursor(ctx context.Context, store ledger.Store) error {
	cursor, err := store.GetScanCursor(ctx)
	if err != nil {
		return fmt.Errorf("read scan cursor: %w", err)
	}
	if cursor == 0 && s.cfg.Ethereum.StartBlock > 0 {
		if err := store.AdvanceScanCursor(ctx, s.cfg.Ethereum.StartBlock); err != nil {
			return fmt.Errorf("seed scan cursor: %w", err)
		}
	}
	return nil
}

func (s *Server) newRouter(handler *api.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// The SSE endpoint is long-lived; everything else gets the wall timeout.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))
		handler.Routes(r)
	})
	handler.StreamRoutes(r)

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	return r
}
