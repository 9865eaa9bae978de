// Package service owns the portfolio state and the refresh pipeline.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"btc_portfolio/internal/client"
	"btc_portfolio/internal/domain"
	"btc_portfolio/internal/pkg/apierrors"
	"btc_portfolio/internal/pkg/metrics"
	"btc_portfolio/internal/storage"

	"go.uber.org/zap"
)

// Validation errors surfaced as inline field feedback. None of them mutates
// state.
var (
	ErrEmptyAddress     = errors.New("wallet address is empty")
	ErrInvalidAddress   = errors.New("wallet address is not a valid Bitcoin address")
	ErrDuplicateAddress = errors.New("wallet address is already being tracked")
	ErrIndexOutOfRange  = errors.New("wallet index out of range")
)

// AddressValidator classifies address strings. Satisfied by
// internal/pkg/address.Validate.
type AddressValidator func(string) bool

// PortfolioEngine owns the portfolio: the ordered wallet list, the shared
// BTC price, the derived total, and the refresh cycle. All state access is
// serialised by an internal mutex; the fetch pipeline runs outside the lock
// so user intents can interleave with a refresh in flight.
type PortfolioEngine struct {
	priceSvc   client.PriceService
	balanceSvc client.BalanceService
	store      *storage.SnapshotStore
	validate   AddressValidator
	apiErrors  *apierrors.Log
	logger     *zap.Logger
	now        func() time.Time

	refreshing atomic.Bool

	mu          sync.Mutex
	wallets     []domain.Wallet
	totalValue  float64
	btcPrice    float64
	lastUpdated *string
}

// NewPortfolioEngine creates an engine with empty state. Call Hydrate to
// restore the persisted snapshot.
func NewPortfolioEngine(
	priceSvc client.PriceService,
	balanceSvc client.BalanceService,
	store *storage.SnapshotStore,
	validate AddressValidator,
	apiErrors *apierrors.Log,
	logger *zap.Logger,
) *PortfolioEngine {
	return &PortfolioEngine{
		priceSvc:   priceSvc,
		balanceSvc: balanceSvc,
		store:      store,
		validate:   validate,
		apiErrors:  apiErrors,
		logger:     logger.Named("PortfolioEngine"),
		now:        time.Now,
	}
}

// Hydrate restores state from storage and, when wallets exist, runs a
// refresh pass that does not advance the portfolio timestamp.
func (e *PortfolioEngine) Hydrate(ctx context.Context) {
	snap := e.store.Load()

	e.mu.Lock()
	e.wallets = snap.Wallets
	e.btcPrice = snap.BTCPrice
	e.lastUpdated = snap.LastUpdated
	e.recalculateTotalLocked()
	walletCount := len(e.wallets)
	e.mu.Unlock()

	e.logger.Info("Portfolio hydrated from storage",
		zap.Int("walletCount", walletCount),
		zap.Float64("btcPrice", snap.BTCPrice))

	if walletCount > 0 {
		e.RefreshAll(ctx, domain.TriggerHydration)
	}
}

// AddWallet validates and appends a new wallet, persists, and runs a full
// refresh. Empty, malformed, and duplicate addresses are rejected without
// mutating state.
func (e *PortfolioEngine) AddWallet(ctx context.Context, addr, nickname string) (domain.Wallet, error) {
	addr = strings.TrimSpace(addr)
	nickname = strings.TrimSpace(nickname)

	e.mu.Lock()
	if addr == "" {
		e.mu.Unlock()
		return domain.Wallet{}, ErrEmptyAddress
	}
	if !e.validate(addr) {
		e.mu.Unlock()
		return domain.Wallet{}, ErrInvalidAddress
	}
	if e.isTrackedLocked(addr) {
		e.mu.Unlock()
		return domain.Wallet{}, ErrDuplicateAddress
	}

	wallet := domain.NewWallet(addr, nickname)
	e.wallets = append(e.wallets, wallet)
	e.recalculateTotalLocked()
	e.persistLocked()
	e.mu.Unlock()

	e.logger.Info("Wallet added", zap.String("address", addr))
	e.RefreshAll(ctx, domain.TriggerUser)
	return wallet, nil
}

// RemoveWallet removes the wallet at index. Interactive confirmation is the
// caller's responsibility; an out-of-range index is a no-op error. No
// network data is refetched.
func (e *PortfolioEngine) RemoveWallet(index int) (domain.Wallet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.wallets) {
		return domain.Wallet{}, ErrIndexOutOfRange
	}

	removed := e.wallets[index]
	e.wallets = append(e.wallets[:index], e.wallets[index+1:]...)
	e.recalculateTotalLocked()
	e.persistLocked()

	e.logger.Info("Wallet removed", zap.String("address", removed.Address))
	return removed, nil
}

// EditNickname updates the nickname of the wallet at index. A nil nickname
// means the edit was cancelled and nothing happens; an empty string clears
// the nickname.
func (e *PortfolioEngine) EditNickname(index int, nickname *string) error {
	if nickname == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.wallets) {
		return ErrIndexOutOfRange
	}

	e.wallets[index].Nickname = strings.TrimSpace(*nickname)
	e.persistLocked()
	return nil
}

// RefreshAll runs one full refresh cycle: one price fetch, then each wallet
// in list order, one at a time. A cycle already in flight makes this a
// no-op. The portfolio timestamp only advances for user- and
// scheduler-triggered passes, not hydration.
func (e *PortfolioEngine) RefreshAll(ctx context.Context, trigger domain.RefreshTrigger) {
	if !e.refreshing.CompareAndSwap(false, true) {
		e.logger.Debug("Refresh already in flight, skipping", zap.String("trigger", string(trigger)))
		return
	}
	defer e.refreshing.Store(false)

	price, priceSource := e.priceSvc.GetPrice(ctx)

	e.mu.Lock()
	e.btcPrice = price
	addresses := make([]string, len(e.wallets))
	for i, w := range e.wallets {
		addresses[i] = w.Address
	}
	e.mu.Unlock()

	for _, addr := range addresses {
		balance, source := e.balanceSvc.GetBalance(ctx, addr)
		e.applyBalance(addr, balance, source, price)
	}

	e.mu.Lock()
	e.repriceLocked(price)
	e.recalculateTotalLocked()
	if trigger != domain.TriggerHydration {
		ts := e.now().UTC().Format(time.RFC3339)
		e.lastUpdated = &ts
	}
	e.persistLocked()
	total := e.totalValue
	e.mu.Unlock()

	metrics.RefreshCycles.WithLabelValues(string(trigger)).Inc()
	e.logger.Info("Refresh cycle complete",
		zap.String("trigger", string(trigger)),
		zap.Int("walletCount", len(addresses)),
		zap.Float64("btcPrice", price),
		zap.String("priceSource", string(priceSource)),
		zap.Float64("totalValue", total))
}

// RefreshOne updates a single wallet independently of the batch cycle.
func (e *PortfolioEngine) RefreshOne(ctx context.Context, index int) error {
	e.mu.Lock()
	if index < 0 || index >= len(e.wallets) {
		e.mu.Unlock()
		return ErrIndexOutOfRange
	}
	addr := e.wallets[index].Address
	price := e.btcPrice
	e.mu.Unlock()

	if price == 0 {
		price, _ = e.priceSvc.GetPrice(ctx)
		e.mu.Lock()
		e.btcPrice = price
		e.repriceLocked(price)
		e.mu.Unlock()
	}

	balance, source := e.balanceSvc.GetBalance(ctx, addr)
	e.applyBalance(addr, balance, source, price)

	e.mu.Lock()
	e.recalculateTotalLocked()
	e.persistLocked()
	e.mu.Unlock()

	e.logger.Info("Wallet refreshed", zap.String("address", addr))
	return nil
}

// Reset clears persisted data, in-memory state, and error banners.
func (e *PortfolioEngine) Reset() {
	e.mu.Lock()
	e.wallets = nil
	e.totalValue = 0
	e.btcPrice = 0
	e.lastUpdated = nil
	e.store.Clear()
	e.mu.Unlock()

	e.apiErrors.ClearAll()
	metrics.PortfolioValueUSD.Set(0)
	metrics.TrackedWallets.Set(0)
	e.logger.Info("Portfolio reset complete")
}

// RecoverWallets rebuilds the wallet list from addresses salvaged out of a
// corrupted stored payload. It only acts when the last load flagged the
// payload as unusable; recovered wallets replace the current (empty) list
// and are refreshed like a user action.
func (e *PortfolioEngine) RecoverWallets(ctx context.Context) int {
	recovered := e.store.RecoverCorrupted()
	if len(recovered) == 0 {
		return 0
	}

	e.mu.Lock()
	e.wallets = recovered
	e.recalculateTotalLocked()
	e.persistLocked()
	e.mu.Unlock()

	e.logger.Info("Recovered wallets from corrupted storage", zap.Int("count", len(recovered)))
	e.RefreshAll(ctx, domain.TriggerUser)
	return len(recovered)
}

// HasCorruptData reports whether an on-demand recovery could act.
func (e *PortfolioEngine) HasCorruptData() bool {
	return e.store.HasCorruptData()
}

// Snapshot returns a deep copy of the current portfolio state for the
// presentation layer.
func (e *PortfolioEngine) Snapshot() domain.PortfolioSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	wallets := make([]domain.Wallet, len(e.wallets))
	copy(wallets, e.wallets)
	return domain.PortfolioSnapshot{
		Wallets:     wallets,
		TotalValue:  e.totalValue,
		BTCPrice:    e.btcPrice,
		LastUpdated: copyTimestamp(e.lastUpdated),
		IsLoading:   e.refreshing.Load(),
	}
}

// Summary aggregates the portfolio for the stats line.
func (e *PortfolioEngine) Summary() domain.PortfolioSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	var totalBalance float64
	for _, w := range e.wallets {
		totalBalance += w.Balance
	}
	return domain.PortfolioSummary{
		WalletCount:  len(e.wallets),
		TotalBalance: totalBalance,
		TotalValue:   e.totalValue,
		BTCPrice:     e.btcPrice,
		LastUpdated:  copyTimestamp(e.lastUpdated),
	}
}

// IsTracked reports whether an address is already in the portfolio (exact
// string match).
func (e *PortfolioEngine) IsTracked(addr string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isTrackedLocked(addr)
}

// Errors returns the active collaborator failure banners.
func (e *PortfolioEngine) Errors() []domain.APIError {
	return e.apiErrors.Active()
}

// IsRefreshing reports whether a refresh cycle is in flight.
func (e *PortfolioEngine) IsRefreshing() bool {
	return e.refreshing.Load()
}

// applyBalance writes a fetch result back into the wallet list. Wallets are
// matched by address, not index, so a removal that happened while the fetch
// was in flight wins and the result is dropped.
func (e *PortfolioEngine) applyBalance(addr string, balance float64, source domain.DataSource, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i := range e.wallets {
		if e.wallets[i].Address == addr {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.logger.Debug("Dropping balance result for removed wallet", zap.String("address", addr))
		return
	}

	w := &e.wallets[idx]
	ts := e.now().UTC().Format(time.RFC3339)

	if source == domain.DataSourceLive {
		w.Balance = balance
		w.DataSource = domain.DataSourceLive
		w.HasError = false
		w.ErrorMessage = ""
		w.LastUpdated = &ts
	} else {
		w.HasError = true
		if w.DataSource == domain.DataSourceLive && w.LastUpdated != nil {
			// A previous live figure exists; keep it rather than
			// overwrite real data with a simulation.
			w.ErrorMessage = "Stale data: balance service unavailable"
		} else {
			w.Balance = balance
			w.DataSource = domain.DataSourceSimulated
			w.ErrorMessage = "Balance service unavailable; showing simulated data"
			w.LastUpdated = &ts
		}
	}
	w.USDValue = w.Balance * price

	e.recalculateTotalLocked()
}

// repriceLocked recomputes every wallet's USD value at the given rate,
// keeping totals consistent with the latest price even without a balance
// refetch.
func (e *PortfolioEngine) repriceLocked(price float64) {
	for i := range e.wallets {
		e.wallets[i].USDValue = e.wallets[i].Balance * price
	}
}

func (e *PortfolioEngine) recalculateTotalLocked() {
	var total float64
	for _, w := range e.wallets {
		total += w.USDValue
	}
	e.totalValue = total
	metrics.PortfolioValueUSD.Set(total)
	metrics.TrackedWallets.Set(float64(len(e.wallets)))
}

func (e *PortfolioEngine) persistLocked() {
	wallets := make([]domain.Wallet, len(e.wallets))
	copy(wallets, e.wallets)
	snap := domain.Snapshot{
		Wallets:     wallets,
		BTCPrice:    e.btcPrice,
		LastUpdated: copyTimestamp(e.lastUpdated),
	}
	if !e.store.Save(snap) {
		e.logger.Warn("Portfolio state not durable, continuing in memory")
	}
}

func (e *PortfolioEngine) isTrackedLocked(addr string) bool {
	for _, w := range e.wallets {
		if w.Address == addr {
			return true
		}
	}
	return false
}

func copyTimestamp(ts *string) *string {
	if ts == nil {
		return nil
	}
	v := *ts
	return &v
}
