package client

import (
	"context"
	"fmt"
	"time"

	"btc_portfolio/internal/config"
	"btc_portfolio/internal/domain"
	"btc_portfolio/internal/httpclient"
	"btc_portfolio/internal/pkg/apierrors"
	"btc_portfolio/internal/pkg/metrics"

	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const cachedPriceKey = "btcPriceUSD"

// PriceSource identifies which path produced a BTC/USD rate.
type PriceSource string

const (
	PriceSourcePrimary   PriceSource = "primary"
	PriceSourceSecondary PriceSource = "secondary"
	PriceSourceCached    PriceSource = "cached"
	PriceSourceFallback  PriceSource = "fallback"
)

// PriceService resolves the current BTC/USD exchange rate. GetPrice never
// fails: it degrades from the live services to the cached rate and finally
// to the configured fallback constant.
type PriceService interface {
	GetPrice(ctx context.Context) (float64, PriceSource)
}

type priceServiceImpl struct {
	requester *httpclient.Requester
	cfg       config.PriceAPIConfig
	prices    *cache.Cache
	apiErrors *apierrors.Log
	logger    *zap.Logger
}

// NewPriceService creates a PriceService backed by the two configured price
// endpoints.
func NewPriceService(requester *httpclient.Requester, cfg config.PriceAPIConfig, apiErrors *apierrors.Log, logger *zap.Logger) PriceService {
	return &priceServiceImpl{
		requester: requester,
		cfg:       cfg,
		prices:    cache.New(time.Duration(cfg.CacheTTLMinutes)*time.Minute, 10*time.Minute),
		apiErrors: apiErrors,
		logger:    logger.Named("PriceService"),
	}
}

// coingeckoResponse is the shape of the primary service's payload.
type coingeckoResponse struct {
	Bitcoin struct {
		USD float64 `json:"usd"`
	} `json:"bitcoin"`
}

// coindeskResponse is the shape of the secondary service's payload.
type coindeskResponse struct {
	BPI struct {
		USD struct {
			RateFloat float64 `json:"rate_float"`
		} `json:"USD"`
	} `json:"bpi"`
}

func (s *priceServiceImpl) GetPrice(ctx context.Context) (float64, PriceSource) {
	if rate, err := s.fetchPrimary(ctx); err == nil {
		s.onSuccess(rate, PriceSourcePrimary)
		return rate, PriceSourcePrimary
	} else {
		s.logger.Warn("Primary price service failed, trying secondary", zap.Error(err))
	}

	if rate, err := s.fetchSecondary(ctx); err == nil {
		s.onSuccess(rate, PriceSourceSecondary)
		return rate, PriceSourceSecondary
	} else {
		s.logger.Warn("Secondary price service failed", zap.Error(err))
	}

	s.apiErrors.Set(domain.ErrorChannelPrice, "All price services failed; using last known rate")

	if cached, ok := s.prices.Get(cachedPriceKey); ok {
		if rate, isFloat := cached.(float64); isFloat && rate > 0 {
			s.logger.Info("Using cached BTC price", zap.Float64("rate", rate))
			metrics.PriceFetches.WithLabelValues(string(PriceSourceCached)).Inc()
			return rate, PriceSourceCached
		}
	}

	s.logger.Warn("No cached BTC price available, using fallback constant", zap.Float64("rate", s.cfg.FallbackPrice))
	metrics.PriceFetches.WithLabelValues(string(PriceSourceFallback)).Inc()
	return s.cfg.FallbackPrice, PriceSourceFallback
}

func (s *priceServiceImpl) onSuccess(rate float64, source PriceSource) {
	s.prices.Set(cachedPriceKey, rate, cache.DefaultExpiration)
	s.apiErrors.Clear(domain.ErrorChannelPrice)
	metrics.PriceFetches.WithLabelValues(string(source)).Inc()
	s.logger.Debug("BTC price updated", zap.Float64("rate", rate), zap.String("source", string(source)))
}

func (s *priceServiceImpl) fetchPrimary(ctx context.Context) (float64, error) {
	body, err := s.requester.Get(ctx, s.cfg.PrimaryURL, "application/json")
	if err != nil {
		return 0, err
	}
	var payload coingeckoResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("failed to unmarshal primary price response: %w", err)
	}
	if payload.Bitcoin.USD <= 0 {
		return 0, fmt.Errorf("primary price response carried no positive USD rate")
	}
	return payload.Bitcoin.USD, nil
}

func (s *priceServiceImpl) fetchSecondary(ctx context.Context) (float64, error) {
	body, err := s.requester.Get(ctx, s.cfg.SecondaryURL, "application/json")
	if err != nil {
		return 0, err
	}
	var payload coindeskResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("failed to unmarshal secondary price response: %w", err)
	}
	if payload.BPI.USD.RateFloat <= 0 {
		return 0, fmt.Errorf("secondary price response carried no positive USD rate")
	}
	return payload.BPI.USD.RateFloat, nil
}
