// Package metrics holds the Prometheus collectors for the tracker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RefreshCycles counts completed full refresh passes by trigger.
	RefreshCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_refresh_cycles_total",
		Help: "Completed full refresh passes, labelled by trigger (hydration, user, scheduler).",
	}, []string{"trigger"})

	// BalanceFetches counts per-wallet balance fetch outcomes.
	BalanceFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "balance_fetches_total",
		Help: "Balance fetch results, labelled by data source (live, simulated).",
	}, []string{"source"})

	// PriceFetches counts BTC/USD rate resolutions by winning source.
	PriceFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_fetches_total",
		Help: "BTC/USD rate resolutions, labelled by source (primary, secondary, cached, fallback).",
	}, []string{"source"})

	// StorageFailures counts snapshot persistence failures by classification.
	StorageFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_failures_total",
		Help: "Snapshot store failures, labelled by kind (quota, access, unknown).",
	}, []string{"kind"})

	// PortfolioValueUSD is the current aggregate portfolio value.
	PortfolioValueUSD = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portfolio_value_usd",
		Help: "Current total portfolio value in USD.",
	})

	// TrackedWallets is the current number of tracked wallets.
	TrackedWallets = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portfolio_tracked_wallets",
		Help: "Number of wallet addresses currently tracked.",
	})
)

// MustRegisterMetrics registers all collectors with the default registry.
// Panics on duplicate registration, so call it once from main.
func MustRegisterMetrics() {
	prometheus.MustRegister(
		RefreshCycles,
		BalanceFetches,
		PriceFetches,
		StorageFailures,
		PortfolioValueUSD,
		TrackedWallets,
	)
}
