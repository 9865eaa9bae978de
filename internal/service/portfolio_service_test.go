package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"btc_portfolio/internal/client"
	"btc_portfolio/internal/domain"
	"btc_portfolio/internal/pkg/address"
	"btc_portfolio/internal/pkg/apierrors"
	"btc_portfolio/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	addrGenesis = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	addrP2SH    = "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy"
	addrSegwit  = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
)

// memKV is a minimal in-memory backend for engine tests.
type memKV struct {
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func (m *memKV) Get(key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}
func (m *memKV) Set(key, value string) error { m.data[key] = value; return nil }
func (m *memKV) Delete(key string) error     { delete(m.data, key); return nil }
func (m *memKV) Close() error                { return nil }

// stubPrice returns a fixed rate and counts calls. An optional gate blocks
// GetPrice until released, for overlap tests.
type stubPrice struct {
	rate    float64
	calls   atomic.Int64
	started chan struct{}
	release chan struct{}
}

func (s *stubPrice) GetPrice(ctx context.Context) (float64, client.PriceSource) {
	s.calls.Add(1)
	if s.started != nil {
		s.started <- struct{}{}
		<-s.release
	}
	return s.rate, client.PriceSourcePrimary
}

// stubBalance serves fixed balances per address and simulated fallbacks for
// addresses marked as failing.
type stubBalance struct {
	balances map[string]float64
	failing  map[string]bool
	started  chan struct{}
	release  chan struct{}
}

func (s *stubBalance) GetBalance(ctx context.Context, addr string) (float64, domain.DataSource) {
	if s.started != nil {
		s.started <- struct{}{}
		<-s.release
	}
	if s.failing[addr] {
		return client.SimulatedBalance(addr), domain.DataSourceSimulated
	}
	return s.balances[addr], domain.DataSourceLive
}

type engineFixture struct {
	engine  *PortfolioEngine
	price   *stubPrice
	balance *stubBalance
	kv      *memKV
	store   *storage.SnapshotStore
	errors  *apierrors.Log
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()
	kv := newMemKV()
	apiErrors := apierrors.NewLog()
	store := storage.NewSnapshotStore(kv, apiErrors, zap.NewNop())
	price := &stubPrice{rate: 50000}
	balance := &stubBalance{balances: map[string]float64{}, failing: map[string]bool{}}
	engine := NewPortfolioEngine(price, balance, store, address.Validate, apiErrors, zap.NewNop())
	return &engineFixture{engine: engine, price: price, balance: balance, kv: kv, store: store, errors: apiErrors}
}

func TestAddWalletValidation(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr error
	}{
		{"empty", "", ErrEmptyAddress},
		{"whitespace only", "   ", ErrEmptyAddress},
		{"malformed", "not-a-bitcoin-address", ErrInvalidAddress},
		{"bad checksum chars", "1A1zP1eP5QGefi2DMPTfTL5SLmv7Div0Ol", ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.engine.AddWallet(context.Background(), tt.addr, "")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.engine.Summary().WalletCount, "rejected add must not mutate state")
		})
	}
}

func TestAddWalletDuplicate(t *testing.T) {
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 1

	_, err := f.engine.AddWallet(context.Background(), addrGenesis, "first")
	require.NoError(t, err)

	_, err = f.engine.AddWallet(context.Background(), addrGenesis, "second")
	assert.ErrorIs(t, err, ErrDuplicateAddress)
	assert.Equal(t, 1, f.engine.Summary().WalletCount)
}

func TestAddWalletTrimsAndRefreshes(t *testing.T) {
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 1.5

	_, err := f.engine.AddWallet(context.Background(), "  "+addrGenesis+"  ", "  Cold storage  ")
	require.NoError(t, err)

	snap := f.engine.Snapshot()
	require.Len(t, snap.Wallets, 1)
	w := snap.Wallets[0]
	assert.Equal(t, addrGenesis, w.Address)
	assert.Equal(t, "Cold storage", w.Nickname)
	assert.Equal(t, 1.5, w.Balance)
	assert.Equal(t, 75000.0, w.USDValue)
	assert.Equal(t, domain.DataSourceLive, w.DataSource)
	assert.False(t, w.HasError)
	require.NotNil(t, w.LastUpdated)
	assert.Equal(t, 75000.0, snap.TotalValue)
	assert.NotNil(t, snap.LastUpdated, "user-triggered refresh stamps the portfolio")
}

func TestRemoveWalletPreservesOrder(t *testing.T) {
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 1
	f.balance.balances[addrP2SH] = 2
	f.balance.balances[addrSegwit] = 3
	ctx := context.Background()

	for _, a := range []string{addrGenesis, addrP2SH, addrSegwit} {
		_, err := f.engine.AddWallet(ctx, a, "")
		require.NoError(t, err)
	}

	removed, err := f.engine.RemoveWallet(0)
	require.NoError(t, err)
	assert.Equal(t, addrGenesis, removed.Address)

	snap := f.engine.Snapshot()
	require.Len(t, snap.Wallets, 2)
	assert.Equal(t, addrP2SH, snap.Wallets[0].Address)
	assert.Equal(t, addrSegwit, snap.Wallets[1].Address)
	assert.Equal(t, (2.0+3.0)*50000, snap.TotalValue, "total recomputed from survivors")

	_, err = f.engine.RemoveWallet(5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = f.engine.RemoveWallet(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestEditNickname(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.AddWallet(context.Background(), addrGenesis, "old")
	require.NoError(t, err)

	require.NoError(t, f.engine.EditNickname(0, nil), "nil nickname is a cancelled edit")
	assert.Equal(t, "old", f.engine.Snapshot().Wallets[0].Nickname)

	name := "  new name  "
	require.NoError(t, f.engine.EditNickname(0, &name))
	assert.Equal(t, "new name", f.engine.Snapshot().Wallets[0].Nickname)

	empty := ""
	require.NoError(t, f.engine.EditNickname(0, &empty), "empty string clears the nickname")
	assert.Equal(t, "", f.engine.Snapshot().Wallets[0].Nickname)

	assert.ErrorIs(t, f.engine.EditNickname(3, &name), ErrIndexOutOfRange)
}

func TestTotalEqualsSumOfWalletValues(t *testing.T) {
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 0.5
	f.balance.balances[addrSegwit] = 1.25
	ctx := context.Background()

	_, err := f.engine.AddWallet(ctx, addrGenesis, "")
	require.NoError(t, err)
	_, err = f.engine.AddWallet(ctx, addrSegwit, "")
	require.NoError(t, err)

	snap := f.engine.Snapshot()
	var sum float64
	for _, w := range snap.Wallets {
		sum += w.USDValue
	}
	assert.Equal(t, sum, snap.TotalValue)
	assert.Equal(t, 1.75, f.engine.Summary().TotalBalance)
}

func TestRefreshRepricesAllWallets(t *testing.T) {
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 2
	ctx := context.Background()

	_, err := f.engine.AddWallet(ctx, addrGenesis, "")
	require.NoError(t, err)
	assert.Equal(t, 100000.0, f.engine.Snapshot().TotalValue)

	f.price.rate = 60000
	f.engine.RefreshAll(ctx, domain.TriggerScheduler)

	snap := f.engine.Snapshot()
	assert.Equal(t, 60000.0, snap.BTCPrice)
	assert.Equal(t, 120000.0, snap.Wallets[0].USDValue)
	assert.Equal(t, 120000.0, snap.TotalValue)
}

func TestBalanceFailureKeepsPreviousLiveValue(t *testing.T) {
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 1.0
	ctx := context.Background()

	_, err := f.engine.AddWallet(ctx, addrGenesis, "")
	require.NoError(t, err)
	require.Equal(t, 1.0, f.engine.Snapshot().Wallets[0].Balance)

	f.balance.failing[addrGenesis] = true
	f.engine.RefreshAll(ctx, domain.TriggerUser)

	w := f.engine.Snapshot().Wallets[0]
	assert.Equal(t, 1.0, w.Balance, "previous live figure kept over simulation")
	assert.Equal(t, domain.DataSourceLive, w.DataSource)
	assert.True(t, w.HasError)
	assert.Contains(t, w.ErrorMessage, "Stale data")
	assert.Equal(t, 50000.0, w.USDValue, "value still tracks the current rate")
}

func TestBalanceFailureWithoutPriorLiveAdoptsSimulated(t *testing.T) {
	f := newFixture(t)
	f.balance.failing[addrGenesis] = true

	_, err := f.engine.AddWallet(context.Background(), addrGenesis, "")
	require.NoError(t, err)

	w := f.engine.Snapshot().Wallets[0]
	assert.Equal(t, client.SimulatedBalance(addrGenesis), w.Balance)
	assert.Equal(t, domain.DataSourceSimulated, w.DataSource)
	assert.True(t, w.HasError)
	assert.Contains(t, w.ErrorMessage, "simulated")
	require.NotNil(t, w.LastUpdated)
}

func TestBalanceRecoveryClearsError(t *testing.T) {
	f := newFixture(t)
	f.balance.failing[addrGenesis] = true
	ctx := context.Background()

	_, err := f.engine.AddWallet(ctx, addrGenesis, "")
	require.NoError(t, err)
	require.True(t, f.engine.Snapshot().Wallets[0].HasError)

	f.balance.failing[addrGenesis] = false
	f.balance.balances[addrGenesis] = 0.75
	f.engine.RefreshAll(ctx, domain.TriggerScheduler)

	w := f.engine.Snapshot().Wallets[0]
	assert.Equal(t, 0.75, w.Balance)
	assert.Equal(t, domain.DataSourceLive, w.DataSource)
	assert.False(t, w.HasError)
	assert.Empty(t, w.ErrorMessage)
}

func TestOverlappingRefreshIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 1
	ctx := context.Background()

	_, err := f.engine.AddWallet(ctx, addrGenesis, "")
	require.NoError(t, err)
	callsAfterAdd := f.price.calls.Load()

	f.price.started = make(chan struct{}, 1)
	f.price.release = make(chan struct{})

	go f.engine.RefreshAll(ctx, domain.TriggerScheduler)
	<-f.price.started
	require.True(t, f.engine.IsRefreshing())

	f.engine.RefreshAll(ctx, domain.TriggerUser)
	assert.Equal(t, callsAfterAdd+1, f.price.calls.Load(), "second cycle skipped while one is in flight")

	close(f.price.release)
	f.price.started = nil
	waitUntil(t, func() bool { return !f.engine.IsRefreshing() })
}

func TestRemoveDuringRefreshDropsResult(t *testing.T) {
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 1
	ctx := context.Background()

	_, err := f.engine.AddWallet(ctx, addrGenesis, "")
	require.NoError(t, err)

	f.balance.started = make(chan struct{}, 1)
	f.balance.release = make(chan struct{})

	go f.engine.RefreshAll(ctx, domain.TriggerScheduler)
	<-f.balance.started

	// Remove while the fetch for this address is in flight.
	_, err = f.engine.RemoveWallet(0)
	require.NoError(t, err)

	close(f.balance.release)
	f.balance.started = nil
	waitUntil(t, func() bool { return !f.engine.IsRefreshing() })

	snap := f.engine.Snapshot()
	assert.Empty(t, snap.Wallets, "stale fetch result dropped, removal wins")
	assert.Zero(t, snap.TotalValue)
}

func TestHydrationDoesNotAdvanceTimestamp(t *testing.T) {
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 2

	seeded := "2024-03-01T12:00:00Z"
	require.True(t, f.store.Save(domain.Snapshot{
		Wallets:     []domain.Wallet{{Address: addrGenesis, Balance: 1, USDValue: 45000, DataSource: domain.DataSourceLive}},
		BTCPrice:    45000,
		LastUpdated: &seeded,
	}))

	f.engine.Hydrate(context.Background())

	snap := f.engine.Snapshot()
	require.Len(t, snap.Wallets, 1)
	assert.Equal(t, 2.0, snap.Wallets[0].Balance, "hydration still refetches balances")
	require.NotNil(t, snap.LastUpdated)
	assert.Equal(t, seeded, *snap.LastUpdated, "hydration pass keeps the stored timestamp")
}

func TestHydrateEmptyStorageSkipsRefresh(t *testing.T) {
	f := newFixture(t)
	f.engine.Hydrate(context.Background())
	assert.Zero(t, f.price.calls.Load(), "no wallets, no refresh pass")
	assert.Empty(t, f.engine.Snapshot().Wallets)
}

func TestStatePersistsAcrossEngines(t *testing.T) {
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 1.5
	_, err := f.engine.AddWallet(context.Background(), addrGenesis, "vault")
	require.NoError(t, err)

	// A second engine over the same backend sees the saved state.
	store2 := storage.NewSnapshotStore(f.kv, apierrors.NewLog(), zap.NewNop())
	price2 := &stubPrice{rate: 50000}
	balance2 := &stubBalance{balances: map[string]float64{addrGenesis: 1.5}, failing: map[string]bool{}}
	engine2 := NewPortfolioEngine(price2, balance2, store2, address.Validate, apierrors.NewLog(), zap.NewNop())
	engine2.Hydrate(context.Background())

	snap := engine2.Snapshot()
	require.Len(t, snap.Wallets, 1)
	assert.Equal(t, "vault", snap.Wallets[0].Nickname)
	assert.Equal(t, 1.5, snap.Wallets[0].Balance)
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 1
	_, err := f.engine.AddWallet(context.Background(), addrGenesis, "")
	require.NoError(t, err)
	f.errors.Set(domain.ErrorChannelPrice, "stale banner")

	f.engine.Reset()

	snap := f.engine.Snapshot()
	assert.Empty(t, snap.Wallets)
	assert.Zero(t, snap.TotalValue)
	assert.Zero(t, snap.BTCPrice)
	assert.Nil(t, snap.LastUpdated)
	assert.Empty(t, f.engine.Errors())
	assert.Empty(t, f.kv.data, "persisted keys removed")
}

func TestRecoverWallets(t *testing.T) {
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 1
	f.balance.balances[addrSegwit] = 2

	f.kv.data["wallets"] = `{{corrupt ` + addrGenesis + ` junk ` + addrSegwit
	f.engine.Hydrate(context.Background())
	require.Empty(t, f.engine.Snapshot().Wallets)
	require.True(t, f.engine.HasCorruptData())

	count := f.engine.RecoverWallets(context.Background())
	assert.Equal(t, 2, count)

	snap := f.engine.Snapshot()
	require.Len(t, snap.Wallets, 2)
	assert.Equal(t, addrGenesis, snap.Wallets[0].Address)
	assert.Equal(t, addrSegwit, snap.Wallets[1].Address)
	assert.Equal(t, 1.0, snap.Wallets[0].Balance, "recovered wallets refreshed like a user action")
	assert.False(t, f.engine.HasCorruptData())

	assert.Zero(t, f.engine.RecoverWallets(context.Background()), "nothing left to recover")
}

func TestIsTracked(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.AddWallet(context.Background(), addrGenesis, "")
	require.NoError(t, err)

	assert.True(t, f.engine.IsTracked(addrGenesis))
	assert.False(t, f.engine.IsTracked(addrSegwit))
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
