// Package restapi exposes the portfolio engine to the browser UI. It is the
// presentation sink: it reads state snapshots and dispatches user intents
// back into the engine's public operations.
package restapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"btc_portfolio/internal/domain"
	"btc_portfolio/internal/pkg/format"
	"btc_portfolio/internal/service"

	"github.com/gin-gonic/gin"
)

// WalletCard is the per-wallet render model.
type WalletCard struct {
	Address          string            `json:"address"`
	Nickname         string            `json:"nickname,omitempty"`
	Balance          float64           `json:"balance"`
	FormattedBalance string            `json:"formattedBalance"`
	USDValue         float64           `json:"usdValue"`
	FormattedValue   string            `json:"formattedValue"`
	DataSource       domain.DataSource `json:"dataSource"`
	LastUpdated      *string           `json:"lastUpdated"`
	HasError         bool              `json:"hasError"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
}

// PortfolioResponse is the full render model for the portfolio view.
type PortfolioResponse struct {
	Wallets             []WalletCard      `json:"wallets"`
	WalletCount         int               `json:"walletCount"`
	TotalValue          float64           `json:"totalValue"`
	FormattedTotalValue string            `json:"formattedTotalValue"`
	TotalBalance        string            `json:"totalBalance"`
	BTCPrice            float64           `json:"btcPrice"`
	FormattedBTCPrice   string            `json:"formattedBtcPrice"`
	LastUpdated         *string           `json:"lastUpdated"`
	TimeAgo             string            `json:"timeAgo,omitempty"`
	IsLoading           bool              `json:"isLoading"`
	Errors              []domain.APIError `json:"errors"`
	CanRecover          bool              `json:"canRecover"`
}

// PortfolioHandler carries HTTP requests into the engine.
type PortfolioHandler struct {
	engine *service.PortfolioEngine
}

// NewPortfolioHandler creates a handler around the engine.
func NewPortfolioHandler(engine *service.PortfolioEngine) *PortfolioHandler {
	return &PortfolioHandler{engine: engine}
}

// GetPortfolioHandler renders the current portfolio snapshot.
func (h *PortfolioHandler) GetPortfolioHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.buildResponse())
}

func (h *PortfolioHandler) buildResponse() PortfolioResponse {
	snap := h.engine.Snapshot()
	summary := h.engine.Summary()

	cards := make([]WalletCard, 0, len(snap.Wallets))
	for _, w := range snap.Wallets {
		cards = append(cards, WalletCard{
			Address:          w.Address,
			Nickname:         w.Nickname,
			Balance:          w.Balance,
			FormattedBalance: format.BTC(w.Balance, true),
			USDValue:         w.USDValue,
			FormattedValue:   format.USD(w.USDValue),
			DataSource:       w.DataSource,
			LastUpdated:      w.LastUpdated,
			HasError:         w.HasError,
			ErrorMessage:     w.ErrorMessage,
		})
	}

	resp := PortfolioResponse{
		Wallets:             cards,
		WalletCount:         summary.WalletCount,
		TotalValue:          snap.TotalValue,
		FormattedTotalValue: format.USD(snap.TotalValue),
		TotalBalance:        format.BTC(summary.TotalBalance, true),
		BTCPrice:            snap.BTCPrice,
		FormattedBTCPrice:   format.USD(snap.BTCPrice),
		LastUpdated:         snap.LastUpdated,
		IsLoading:           snap.IsLoading,
		Errors:              h.engine.Errors(),
		CanRecover:          h.engine.HasCorruptData(),
	}
	if snap.LastUpdated != nil {
		if ts, err := time.Parse(time.RFC3339, *snap.LastUpdated); err == nil {
			resp.TimeAgo = format.TimeAgo(ts, time.Now())
		}
	}
	return resp
}

type addWalletRequest struct {
	Address  string `json:"address"`
	Nickname string `json:"nickname"`
}

// AddWalletHandler validates and adds a wallet, then triggers a refresh.
func (h *PortfolioHandler) AddWalletHandler(c *gin.Context) {
	var req addWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	wallet, err := h.engine.AddWallet(c.Request.Context(), req.Address, req.Nickname)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyAddress):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a wallet address."})
		case errors.Is(err, service.ErrInvalidAddress):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid Bitcoin address."})
		case errors.Is(err, service.ErrDuplicateAddress):
			c.JSON(http.StatusConflict, gin.H{"error": "This wallet address is already being tracked."})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Wallet added successfully.",
		"wallet":  wallet,
	})
}

// RemoveWalletHandler removes the wallet at :index. The interactive
// confirmation contract is an explicit confirm=true query parameter.
func (h *PortfolioHandler) RemoveWalletHandler(c *gin.Context) {
	index, ok := h.indexParam(c)
	if !ok {
		return
	}
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusConflict, gin.H{"error": "Removal requires confirmation (confirm=true)."})
		return
	}

	removed, err := h.engine.RemoveWallet(index)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No wallet at that position."})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Wallet removed successfully.",
		"wallet":  removed,
	})
}

type editNicknameRequest struct {
	// A null or absent nickname means the edit was cancelled.
	Nickname *string `json:"nickname"`
}

// EditNicknameHandler renames the wallet at :index. A null nickname is a
// cancelled edit and changes nothing; an empty string clears the nickname.
func (h *PortfolioHandler) EditNicknameHandler(c *gin.Context) {
	index, ok := h.indexParam(c)
	if !ok {
		return
	}

	var req editNicknameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.engine.EditNickname(index, req.Nickname); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No wallet at that position."})
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshWalletHandler refreshes a single wallet.
func (h *PortfolioHandler) RefreshWalletHandler(c *gin.Context) {
	index, ok := h.indexParam(c)
	if !ok {
		return
	}
	if err := h.engine.RefreshOne(c.Request.Context(), index); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No wallet at that position."})
		return
	}
	c.JSON(http.StatusOK, h.buildResponse())
}

// RefreshAllHandler runs a user-triggered full refresh. A cycle already in
// flight makes this a no-op; the current snapshot is returned either way.
func (h *PortfolioHandler) RefreshAllHandler(c *gin.Context) {
	h.engine.RefreshAll(c.Request.Context(), domain.TriggerUser)
	c.JSON(http.StatusOK, h.buildResponse())
}

// ResetHandler clears the portfolio and its persisted data.
func (h *PortfolioHandler) ResetHandler(c *gin.Context) {
	h.engine.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "Portfolio reset successfully."})
}

// RecoverHandler attempts best-effort recovery from a corrupted stored
// payload.
func (h *PortfolioHandler) RecoverHandler(c *gin.Context) {
	count := h.engine.RecoverWallets(c.Request.Context())
	if count == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No recoverable wallet data found.", "recovered": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Recovered wallet addresses from corrupted data.",
		"recovered": count,
	})
}

func (h *PortfolioHandler) indexParam(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet index"})
		return 0, false
	}
	return index, true
}
