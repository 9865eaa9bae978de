package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"btc_portfolio/internal/config"
	"btc_portfolio/internal/domain"
	"btc_portfolio/internal/httpclient"
	"btc_portfolio/internal/pkg/apierrors"
	"btc_portfolio/internal/pkg/metrics"

	"go.uber.org/zap"
)

const satoshisPerBTC = 1e8

// BalanceService resolves a single address's balance in BTC. GetBalance
// never fails: when the balance API is unreachable it returns a
// deterministic simulated balance derived from the address, tagged
// domain.DataSourceSimulated so callers can tell it apart from chain data.
type BalanceService interface {
	GetBalance(ctx context.Context, address string) (float64, domain.DataSource)
}

type balanceServiceImpl struct {
	requester *httpclient.Requester
	cfg       config.BalanceAPIConfig
	apiErrors *apierrors.Log
	logger    *zap.Logger
}

// NewBalanceService creates a BalanceService backed by the configured
// balance endpoint.
func NewBalanceService(requester *httpclient.Requester, cfg config.BalanceAPIConfig, apiErrors *apierrors.Log, logger *zap.Logger) BalanceService {
	return &balanceServiceImpl{
		requester: requester,
		cfg:       cfg,
		apiErrors: apiErrors,
		logger:    logger.Named("BalanceService"),
	}
}

func (s *balanceServiceImpl) GetBalance(ctx context.Context, address string) (float64, domain.DataSource) {
	balance, err := s.fetchLive(ctx, address)
	if err == nil {
		s.apiErrors.Clear(domain.ErrorChannelBalance)
		s.apiErrors.Clear(domain.ErrorChannelNetwork)
		metrics.BalanceFetches.WithLabelValues(string(domain.DataSourceLive)).Inc()
		return balance, domain.DataSourceLive
	}

	s.logger.Warn("Balance fetch failed, deriving simulated balance",
		zap.String("address", address),
		zap.Error(err))
	var reqErr *httpclient.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode == 0 {
		// The request never reached the server.
		s.apiErrors.Set(domain.ErrorChannelNetwork, "Network error: unable to reach the balance service.")
	}
	s.apiErrors.Set(domain.ErrorChannelBalance,
		fmt.Sprintf("Failed to fetch balance for %s: %v", shortAddress(address), err))
	metrics.BalanceFetches.WithLabelValues(string(domain.DataSourceSimulated)).Inc()
	return SimulatedBalance(address), domain.DataSourceSimulated
}

func (s *balanceServiceImpl) fetchLive(ctx context.Context, address string) (float64, error) {
	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/" + address
	body, err := s.requester.Get(ctx, url, "text/plain")
	if err != nil {
		return 0, err
	}

	satoshis, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric balance response %q: %w", truncateBody(body), err)
	}
	if satoshis < 0 {
		return 0, fmt.Errorf("negative balance response %d", satoshis)
	}
	return float64(satoshis) / satoshisPerBTC, nil
}

// SimulatedBalance derives a stable pseudo-balance in [0.001, 2.501) BTC
// from a 32-bit string hash of the address, rounded to satoshi precision.
// The same address always yields the same figure.
func SimulatedBalance(address string) float64 {
	var h int32
	for _, c := range address {
		h = (h << 5) - h + int32(c)
	}
	m := h % 2500
	if m < 0 {
		m = -m
	}
	balance := float64(m)/1000 + 0.001
	return math.Round(balance*satoshisPerBTC) / satoshisPerBTC
}

func shortAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:8] + "..."
}

func truncateBody(body []byte) string {
	const max = 64
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
