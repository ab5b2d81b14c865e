package handler

import (
	"strconv"

	"wallet-ledger-core/internal/adapter/http/dto"
	"wallet-ledger-core/internal/core/ports"
	"wallet-ledger-core/pkg/apperror"
	"wallet-ledger-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// WalletHandler serves the wallet read surface.
type WalletHandler struct {
	ledgerSvc ports.LedgerService
	entries   ports.LedgerRepository
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledgerSvc ports.LedgerService, entries ports.LedgerRepository) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc, entries: entries}
}

// GetBalance handles GET /api/v1/wallets/:id/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid wallet id"))
		return
	}

	balance, err := h.ledgerSvc.GetBalance(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, balance)
}

// ListEntries handles GET /api/v1/wallets/:id/entries. Newest first.
func (h *WalletHandler) ListEntries(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid wallet id"))
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	items, err := h.entries.ListByWallet(c.Request.Context(), walletID, pageSize, (page-1)*pageSize)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	response.OK(c, dto.EntryListResponse{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
	})
}
