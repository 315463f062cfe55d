package bridge

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pawbridge/paw-middleware/pkg/blacklist"
	"github.com/pawbridge/paw-middleware/pkg/config"
	"github.com/pawbridge/paw-middleware/pkg/ledger"
	"github.com/pawbridge/paw-middleware/pkg/pawchain"
	"github.com/pawbridge/paw-middleware/pkg/queue"
)

type mockStore struct {
	GetBalanceFunc        func(ctx context.Context, native string) (*big.Int, error)
	HasPendingClaimFunc   func(ctx context.Context, native string) (string, bool, error)
	StorePendingClaimFunc func(ctx context.Context, native, evmAddress string) (bool, error)
	IsClaimedFunc         func(ctx context.Context, native string) (bool, error)
	HasClaimFunc          func(ctx context.Context, native, evmAddress string) (bool, error)
	ConfirmClaimFunc      func(ctx context.Context, native string) error

	StoreDepositFunc func(ctx context.Context, d ledger.Deposit) (bool, error)
	HasDepositFunc   func(ctx context.Context, native, hash string) (bool, error)

	StoreWithdrawalFunc func(ctx context.Context, w ledger.Withdrawal) (bool, error)
	HasWithdrawalAtFunc func(ctx context.Context, native string, ts int64) (bool, error)

	StoreSwapToWrappedFunc func(ctx context.Context, s ledger.SwapToWrapped) (bool, error)
	StoreSwapToNativeFunc  func(ctx context.Context, s ledger.SwapToNative) (bool, error)
	HasSwapToNativeFunc    func(ctx context.Context, evmAddress, hash string) (bool, error)
}

func (m *mockStore) GetBalance(ctx context.Context, native string) (*big.Int, error) {
	if m.GetBalanceFunc != nil {
		return m.GetBalanceFunc(ctx, native)
	}
	return big.NewInt(0), nil
}

func (m *mockStore) HasPendingClaim(ctx context.Context, native string) (string, bool, error) {
	if m.HasPendingClaimFunc != nil {
		return m.HasPendingClaimFunc(ctx, native)
	}
	return "", false, nil
}

func (m *mockStore) StorePendingClaim(ctx context.Context, native, evmAddress string) (bool, error) {
	if m.StorePendingClaimFunc != nil {
		return m.StorePendingClaimFunc(ctx, native, evmAddress)
	}
	return true, nil
}

func (m *mockStore) IsClaimed(ctx context.Context, native string) (bool, error) {
	if m.IsClaimedFunc != nil {
		return m.IsClaimedFunc(ctx, native)
	}
	return false, nil
}

func (m *mockStore) HasClaim(ctx context.Context, native, evmAddress string) (bool, error) {
	if m.HasClaimFunc != nil {
		return m.HasClaimFunc(ctx, native, evmAddress)
	}
	return false, nil
}

func (m *mockStore) ConfirmClaim(ctx context.Context, native string) error {
	if m.ConfirmClaimFunc != nil {
		return m.ConfirmClaimFunc(ctx, native)
	}
	return nil
}

func (m *mockStore) StoreDeposit(ctx context.Context, d ledger.Deposit) (bool, error) {
	if m.StoreDepositFunc != nil {
		return m.StoreDepositFunc(ctx, d)
	}
	return true, nil
}

func (m *mockStore) HasDeposit(ctx context.Context, native, hash string) (bool, error) {
	if m.HasDepositFunc != nil {
		return m.HasDepositFunc(ctx, native, hash)
	}
	return false, nil
}

func (m *mockStore) StoreWithdrawal(ctx context.Context, w ledger.Withdrawal) (bool, error) {
	if m.StoreWithdrawalFunc != nil {
		return m.StoreWithdrawalFunc(ctx, w)
	}
	return true, nil
}

func (m *mockStore) HasWithdrawalAt(ctx context.Context, native string, ts int64) (bool, error) {
	if m.HasWithdrawalAtFunc != nil {
		return m.HasWithdrawalAtFunc(ctx, native, ts)
	}
	return false, nil
}

func (m *mockStore) StoreSwapToWrapped(ctx context.Context, s ledger.SwapToWrapped) (bool, error) {
	if m.StoreSwapToWrappedFunc != nil {
		return m.StoreSwapToWrappedFunc(ctx, s)
	}
	return true, nil
}

func (m *mockStore) StoreSwapToNative(ctx context.Context, s ledger.SwapToNative) (bool, error) {
	if m.StoreSwapToNativeFunc != nil {
		return m.StoreSwapToNativeFunc(ctx, s)
	}
	return true, nil
}

func (m *mockStore) HasSwapToNative(ctx context.Context, evmAddress, hash string) (bool, error) {
	if m.HasSwapToNativeFunc != nil {
		return m.HasSwapToNativeFunc(ctx, evmAddress, hash)
	}
	return false, nil
}

func (m *mockStore) GetAudit(context.Context, string) (ledger.Audit, bool, error) {
	return ledger.Audit{}, false, nil
}

func (m *mockStore) GetScanCursor(context.Context) (uint64, error)    { return 0, nil }
func (m *mockStore) AdvanceScanCursor(context.Context, uint64) error  { return nil }
func (m *mockStore) Deposits(context.Context, string) ([]ledger.Deposit, error) {
	return nil, nil
}
func (m *mockStore) Withdrawals(context.Context, string) ([]ledger.Withdrawal, error) {
	return nil, nil
}
func (m *mockStore) SwapsToWrapped(context.Context, string) ([]ledger.SwapToWrapped, error) {
	return nil, nil
}
func (m *mockStore) SwapsToNative(context.Context, string) ([]ledger.SwapToNative, error) {
	return nil, nil
}

type mockJobs struct {
	EnqueueWithdrawalFunc        func(ctx context.Context, job queue.WithdrawalJob) (bool, error)
	EnqueuePendingWithdrawalFunc func(ctx context.Context, job queue.WithdrawalJob) (bool, error)
	EnqueueSwapToWrappedFunc     func(ctx context.Context, job queue.SwapToWrappedJob) (bool, error)
	PendingAmountFunc            func(ctx context.Context) (*big.Int, error)
}

func (m *mockJobs) EnqueueWithdrawal(ctx context.Context, job queue.WithdrawalJob) (bool, error) {
	if m.EnqueueWithdrawalFunc != nil {
		return m.EnqueueWithdrawalFunc(ctx, job)
	}
	return true, nil
}

func (m *mockJobs) EnqueuePendingWithdrawal(ctx context.Context, job queue.WithdrawalJob) (bool, error) {
	if m.EnqueuePendingWithdrawalFunc != nil {
		return m.EnqueuePendingWithdrawalFunc(ctx, job)
	}
	return true, nil
}

func (m *mockJobs) EnqueueSwapToWrapped(ctx context.Context, job queue.SwapToWrappedJob) (bool, error) {
	if m.EnqueueSwapToWrappedFunc != nil {
		return m.EnqueueSwapToWrappedFunc(ctx, job)
	}
	return true, nil
}

func (m *mockJobs) GetPendingWithdrawalsAmount(ctx context.Context) (*big.Int, error) {
	if m.PendingAmountFunc != nil {
		return m.PendingAmountFunc(ctx)
	}
	return big.NewInt(0), nil
}

type mockNode struct {
	BalanceFunc func(ctx context.Context, account string) (*big.Int, error)
	SendFunc    func(ctx context.Context, destination string, units *big.Int) (string, error)
	ReceiveFunc func(ctx context.Context, hash string) error

	mu       sync.Mutex
	sends    []mockSend
	received []string
}

type mockSend struct {
	Destination string
	Units       *big.Int
}

func (m *mockNode) HotWallet() string  { return "paw_hot" }
func (m *mockNode) ColdWallet() string { return "paw_cold" }

func (m *mockNode) Send(ctx context.Context, destination string, units *big.Int) (string, error) {
	m.mu.Lock()
	m.sends = append(m.sends, mockSend{Destination: destination, Units: new(big.Int).Set(units)})
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, destination, units)
	}
	return "sent_hash", nil
}

func (m *mockNode) Receive(ctx context.Context, hash string) error {
	m.mu.Lock()
	m.received = append(m.received, hash)
	m.mu.Unlock()
	if m.ReceiveFunc != nil {
		return m.ReceiveFunc(ctx, hash)
	}
	return nil
}

func (m *mockNode) Receivables(context.Context) ([]pawchain.Receivable, error) { return nil, nil }

func (m *mockNode) Balance(ctx context.Context, account string) (*big.Int, error) {
	if m.BalanceFunc != nil {
		return m.BalanceFunc(ctx, account)
	}
	return big.NewInt(0), nil
}

func (m *mockNode) SubscribeConfirmations(ctx context.Context, _ []string, _ func(pawchain.Confirmation)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockNode) Sends() []mockSend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockSend(nil), m.sends...)
}

type mockToken struct {
	WrappedBalanceFunc func(ctx context.Context, evmAddress string) (*big.Int, error)
}

func (m *mockToken) WrappedBalance(ctx context.Context, evmAddress string) (*big.Int, error) {
	if m.WrappedBalanceFunc != nil {
		return m.WrappedBalanceFunc(ctx, evmAddress)
	}
	return big.NewInt(0), nil
}

type mockOracle struct {
	IsBlacklistedFunc func(ctx context.Context, native string) (*blacklist.Entry, error)
}

func (m *mockOracle) IsBlacklisted(ctx context.Context, native string) (*blacklist.Entry, error) {
	if m.IsBlacklistedFunc != nil {
		return m.IsBlacklistedFunc(ctx, native)
	}
	return nil, nil
}

type mockSigner struct {
	SignFunc func(evmAddress string, amountRaw *big.Int, uuid int64) (string, error)
}

func (m *mockSigner) Sign(evmAddress string, amountRaw *big.Int, uuid int64) (string, error) {
	if m.SignFunc != nil {
		return m.SignFunc(evmAddress, amountRaw, uuid)
	}
	return "0xreceipt", nil
}

type mockNotifier struct {
	mu     sync.Mutex
	events []mockEvent
}

type mockEvent struct {
	Native string
	Kind   string
	Data   any
}

func (m *mockNotifier) Publish(native, kind string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, mockEvent{Native: native, Kind: kind, Data: data})
}

func (m *mockNotifier) Events() []mockEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockEvent(nil), m.events...)
}

type testDeps struct {
	store  *mockStore
	jobs   *mockJobs
	node   *mockNode
	token  *mockToken
	oracle *mockOracle
	signer *mockSigner
	events *mockNotifier
}

func newTestService(t *testing.T, deps *testDeps) *Service {
	t.Helper()

	svc, err := NewService(
		deps.store, deps.jobs, deps.node, deps.token, deps.oracle, deps.signer, deps.events,
		config.BridgeConfig{HotWalletMinimum: "10", HotColdRatio: 20},
		zap.NewNop(),
	)
	require.NoError(t, err)
	return svc
}

func newTestDeps() *testDeps {
	return &testDeps{
		store:  &mockStore{},
		jobs:   &mockJobs{},
		node:   &mockNode{},
		token:  &mockToken{},
		oracle: &mockOracle{},
		signer: &mockSigner{},
		events: &mockNotifier{},
	}
}
