package handler

import (
	"wallet-ledger-core/internal/adapter/http/dto"
	"wallet-ledger-core/internal/core/ports"
	"wallet-ledger-core/pkg/apperror"
	"wallet-ledger-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransferHandler submits outbound bank transfers.
type TransferHandler struct {
	transferSvc ports.TransferExecutor
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transferSvc ports.TransferExecutor) *TransferHandler {
	return &TransferHandler{transferSvc: transferSvc}
}

// Submit handles POST /api/v1/wallets/:id/transfers.
func (h *TransferHandler) Submit(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid wallet id"))
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	pin := req.Pin
	dto.SanitizeStruct(&req)

	outcome, err := h.transferSvc.Execute(c.Request.Context(), ports.TransferRequest{
		WalletID:           walletID,
		Reference:          req.Reference,
		DestinationAccount: req.DestinationAccount,
		DestinationBank:    req.DestinationBank,
		Amount:             req.Amount,
		Description:        req.Description,
		Pin:                pin,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, outcome)
}
