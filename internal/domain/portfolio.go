package domain

// DataSource tags where a wallet's balance figure came from. Balances fall back
// to a deterministic simulated value when the balance API is unreachable, and
// the tag is how downstream consumers tell the two apart.
type DataSource string

const (
	// DataSourceLive marks a balance fetched from the balance API.
	DataSourceLive DataSource = "live"
	// DataSourceSimulated marks a demo balance derived from the address hash.
	DataSourceSimulated DataSource = "simulated"
)

// Wallet is a single tracked Bitcoin address with its cached balance data.
// Address is the identity key and never changes after creation.
type Wallet struct {
	Address      string     `json:"address"`
	Nickname     string     `json:"nickname"`
	Balance      float64    `json:"balance"`
	USDValue     float64    `json:"usdValue"`
	LastUpdated  *string    `json:"lastUpdated"` // RFC3339, nil until first successful update
	HasError     bool       `json:"hasError"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	DataSource   DataSource `json:"dataSource"`
}

// NewWallet creates a zero-valued wallet record for a validated address.
func NewWallet(address, nickname string) Wallet {
	return Wallet{
		Address:    address,
		Nickname:   nickname,
		DataSource: DataSourceLive,
	}
}

// Snapshot is the serialized projection of portfolio state written to the
// persistence layer: the wallet list plus the shared price and the timestamp
// of the last full refresh.
type Snapshot struct {
	Wallets     []Wallet
	BTCPrice    float64
	LastUpdated *string
}

// PortfolioSnapshot is the read-side copy of portfolio state handed to the
// presentation layer. It shares no memory with the engine's own state.
type PortfolioSnapshot struct {
	Wallets     []Wallet `json:"wallets"`
	TotalValue  float64  `json:"totalValue"`
	BTCPrice    float64  `json:"btcPrice"`
	LastUpdated *string  `json:"lastUpdated"`
	IsLoading   bool     `json:"isLoading"`
}

// PortfolioSummary aggregates the portfolio for the stats line.
type PortfolioSummary struct {
	WalletCount  int     `json:"walletCount"`
	TotalBalance float64 `json:"totalBalance"`
	TotalValue   float64 `json:"totalValue"`
	BTCPrice     float64 `json:"btcPrice"`
	LastUpdated  *string `json:"lastUpdated"`
}

// ErrorChannel classifies user-visible failure banners by collaborator.
type ErrorChannel string

const (
	ErrorChannelPrice   ErrorChannel = "price"
	ErrorChannelBalance ErrorChannel = "balance"
	ErrorChannelNetwork ErrorChannel = "network"
	ErrorChannelStorage ErrorChannel = "storage"
)

// APIError is a classified, human-readable failure surfaced to the
// presentation layer as a non-blocking banner.
type APIError struct {
	Channel ErrorChannel `json:"channel"`
	Message string       `json:"message"`
}

// RefreshTrigger distinguishes why a refresh pass started. Hydration passes
// do not advance the portfolio's lastUpdated timestamp.
type RefreshTrigger string

const (
	TriggerHydration RefreshTrigger = "hydration"
	TriggerUser      RefreshTrigger = "user"
	TriggerScheduler RefreshTrigger = "scheduler"
)
