package storage

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"btc_portfolio/internal/domain"
	"btc_portfolio/internal/pkg/address"
	"btc_portfolio/internal/pkg/apierrors"
	"btc_portfolio/internal/pkg/metrics"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Storage keys for the persisted snapshot.
const (
	KeyWallets     = "wallets"
	KeyBTCPrice    = "btcPrice"
	KeyLastUpdated = "lastUpdated"

	probeKey = "__storage_probe__"
)

// storedWallet is the on-disk wallet shape. Every field is re-validated on
// load; unknown or malformed fields never reach the engine.
type storedWallet struct {
	Address     string      `json:"address"`
	Nickname    string      `json:"nickname"`
	Balance     interface{} `json:"balance"`
	USDValue    interface{} `json:"usdValue"`
	LastUpdated *string     `json:"lastUpdated"`
	DataSource  string      `json:"dataSource"`
}

// SnapshotStore is the persistence adapter between the portfolio engine and
// a key-value backend. Every backend failure is absorbed here: Save reports
// success as a bool, Load always produces a usable (possibly empty) state,
// and the classified failure message goes to the error banner registry.
type SnapshotStore struct {
	kv        KeyValueStore
	apiErrors *apierrors.Log
	logger    *zap.Logger

	mu          sync.Mutex
	corruptData string // raw wallets payload kept for on-demand recovery
}

// NewSnapshotStore creates a snapshot store on top of kv.
func NewSnapshotStore(kv KeyValueStore, apiErrors *apierrors.Log, logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{
		kv:        kv,
		apiErrors: apiErrors,
		logger:    logger.Named("SnapshotStore"),
	}
}

// Save serializes the snapshot under the three storage keys. It returns
// false when the state could not be made durable; the caller keeps operating
// in memory.
func (s *SnapshotStore) Save(snap domain.Snapshot) bool {
	if err := s.probe(); err != nil {
		s.reportFailure("save", err)
		return false
	}

	walletsData, err := json.Marshal(snap.Wallets)
	if err != nil {
		s.reportFailure("save", err)
		return false
	}

	if err := s.kv.Set(KeyWallets, string(walletsData)); err != nil {
		s.reportFailure("save", err)
		return false
	}
	if err := s.kv.Set(KeyBTCPrice, strconv.FormatFloat(snap.BTCPrice, 'f', -1, 64)); err != nil {
		s.reportFailure("save", err)
		return false
	}
	if snap.LastUpdated != nil {
		if err := s.kv.Set(KeyLastUpdated, *snap.LastUpdated); err != nil {
			s.reportFailure("save", err)
			return false
		}
	}

	s.logger.Debug("Portfolio snapshot saved",
		zap.Int("walletCount", len(snap.Wallets)),
		zap.Int("payloadBytes", len(walletsData)))
	return true
}

// Load reads and re-normalises the persisted snapshot. Parse failures and
// malformed entries degrade to empty state; no error ever escapes to the
// caller. An unparseable wallets payload is retained so RecoverCorrupted
// can run against it on demand.
func (s *SnapshotStore) Load() domain.Snapshot {
	var snap domain.Snapshot

	if !s.IsAvailable() {
		s.logger.Warn("Storage backend unavailable, starting with empty portfolio")
		return snap
	}

	rawWallets, ok, err := s.kv.Get(KeyWallets)
	if err != nil {
		s.reportFailure("load", err)
		return snap
	}
	if ok {
		snap.Wallets = s.parseWallets(rawWallets)
	}

	if rawPrice, ok, err := s.kv.Get(KeyBTCPrice); err == nil && ok {
		if price, perr := strconv.ParseFloat(rawPrice, 64); perr == nil && price >= 0 {
			snap.BTCPrice = price
		} else {
			s.logger.Warn("Ignoring malformed stored BTC price", zap.String("raw", rawPrice))
		}
	}

	if rawUpdated, ok, err := s.kv.Get(KeyLastUpdated); err == nil && ok {
		if _, perr := time.Parse(time.RFC3339, rawUpdated); perr == nil {
			snap.LastUpdated = &rawUpdated
		} else {
			s.logger.Warn("Ignoring malformed stored timestamp", zap.String("raw", rawUpdated))
		}
	}

	s.logger.Info("Portfolio snapshot loaded", zap.Int("walletCount", len(snap.Wallets)))
	return snap
}

// parseWallets turns the raw payload into validated wallet records. A
// payload that is not a JSON array is remembered as corrupt and yields nil.
func (s *SnapshotStore) parseWallets(raw string) []domain.Wallet {
	var stored []storedWallet
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.logger.Error("Stored wallets payload is corrupted, resetting to empty state", zap.Error(err))
		s.mu.Lock()
		s.corruptData = raw
		s.mu.Unlock()
		return nil
	}

	wallets := make([]domain.Wallet, 0, len(stored))
	for _, sw := range stored {
		if !address.Validate(sw.Address) {
			s.logger.Warn("Dropping stored wallet with invalid address", zap.String("address", sw.Address))
			continue
		}
		w := domain.NewWallet(sw.Address, sw.Nickname)
		w.Balance = toNonNegativeFloat(sw.Balance)
		w.USDValue = toNonNegativeFloat(sw.USDValue)
		if sw.LastUpdated != nil {
			if _, err := time.Parse(time.RFC3339, *sw.LastUpdated); err == nil {
				w.LastUpdated = sw.LastUpdated
			}
		}
		if sw.DataSource == string(domain.DataSourceSimulated) {
			w.DataSource = domain.DataSourceSimulated
		}
		wallets = append(wallets, w)
	}
	return wallets
}

// IsAvailable probes the backend with a throwaway write/delete.
func (s *SnapshotStore) IsAvailable() bool {
	return s.probe() == nil
}

// probe exercises the backend with a throwaway write/delete and returns the
// classified backend error, so callers can report why it is unusable.
func (s *SnapshotStore) probe() error {
	if err := s.kv.Set(probeKey, "probe"); err != nil {
		return err
	}
	return s.kv.Delete(probeKey)
}

// RecoverCorrupted extracts address-shaped substrings from the last
// unparseable wallets payload and returns them as fresh wallet records. The
// corrupt payload is consumed; recovered wallets are not persisted here.
func (s *SnapshotStore) RecoverCorrupted() []domain.Wallet {
	s.mu.Lock()
	raw := s.corruptData
	s.corruptData = ""
	s.mu.Unlock()

	if raw == "" {
		return nil
	}

	addresses := address.Extract(raw)
	if len(addresses) == 0 {
		s.logger.Info("No recoverable wallet addresses found in corrupted data")
		return nil
	}

	wallets := make([]domain.Wallet, 0, len(addresses))
	for _, addr := range addresses {
		wallets = append(wallets, domain.NewWallet(addr, ""))
	}
	s.logger.Info("Recovered wallet addresses from corrupted data", zap.Int("count", len(wallets)))
	return wallets
}

// HasCorruptData reports whether the last load left behind an unparseable
// wallets payload that RecoverCorrupted could act on.
func (s *SnapshotStore) HasCorruptData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.corruptData != ""
}

// Clear removes the three snapshot keys.
func (s *SnapshotStore) Clear() {
	for _, key := range []string{KeyWallets, KeyBTCPrice, KeyLastUpdated} {
		if err := s.kv.Delete(key); err != nil {
			s.reportFailure("clear", err)
			return
		}
	}
	s.logger.Info("Stored portfolio data cleared")
}

// Info describes the backend for diagnostics.
type Info struct {
	Available   bool    `json:"available"`
	UsedBytes   int     `json:"usedBytes"`
	WalletCount int     `json:"walletCount"`
	LastSaved   *string `json:"lastSaved"`
}

// StorageInfo reports backend availability and rough usage.
func (s *SnapshotStore) StorageInfo() Info {
	info := Info{Available: s.IsAvailable()}
	if !info.Available {
		return info
	}

	if raw, ok, err := s.kv.Get(KeyWallets); err == nil && ok {
		info.UsedBytes += len(raw) + len(KeyWallets)
		var stored []storedWallet
		if json.Unmarshal([]byte(raw), &stored) == nil {
			info.WalletCount = len(stored)
		}
	}
	if raw, ok, err := s.kv.Get(KeyBTCPrice); err == nil && ok {
		info.UsedBytes += len(raw) + len(KeyBTCPrice)
	}
	if raw, ok, err := s.kv.Get(KeyLastUpdated); err == nil && ok {
		info.UsedBytes += len(raw) + len(KeyLastUpdated)
		ts := raw
		info.LastSaved = &ts
	}
	return info
}

func (s *SnapshotStore) reportFailure(operation string, err error) {
	kind := ClassifyFailure(err)
	metrics.StorageFailures.WithLabelValues(string(kind)).Inc()

	var userMessage string
	switch kind {
	case FailureQuota:
		userMessage = "Storage is full. Clear some data to keep changes durable."
	case FailureAccess:
		userMessage = "Storage access is denied. Changes are kept in memory only."
	default:
		userMessage = fmt.Sprintf("Unable to %s wallet data. Your changes may not be saved.", operation)
	}

	s.apiErrors.Set(domain.ErrorChannelStorage, userMessage)
	s.logger.Error("Storage operation failed",
		zap.String("operation", operation),
		zap.String("kind", string(kind)),
		zap.Error(err))
}

// toNonNegativeFloat coerces a loosely-typed numeric field, defaulting
// anything unusable to 0.
func toNonNegativeFloat(v interface{}) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if f < 0 || f != f { // negative or NaN
		return 0
	}
	return f
}
