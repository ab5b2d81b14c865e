package handler

import (
	"wallet-ledger-core/internal/adapter/http/dto"
	"wallet-ledger-core/internal/core/ports"
	"wallet-ledger-core/pkg/apperror"
	"wallet-ledger-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler serves manual adjustments and on-demand reconciliation.
// Operator authentication sits in front of this service, not inside it.
type AdminHandler struct {
	ledgerSvc  ports.LedgerService
	reconciler ports.Reconciler
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledgerSvc ports.LedgerService, reconciler ports.Reconciler) *AdminHandler {
	return &AdminHandler{ledgerSvc: ledgerSvc, reconciler: reconciler}
}

// Adjust handles POST /api/v1/admin/adjustments.
func (h *AdminHandler) Adjust(c *gin.Context) {
	var req dto.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid wallet id"))
		return
	}

	entry, err := h.ledgerSvc.AdminAdjust(c.Request.Context(), ports.AdminAdjustParams{
		WalletID:  walletID,
		Delta:     req.Delta,
		Reference: req.Reference,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, entry)
}

// RunReconciliation handles POST /api/v1/admin/reconciliation/run.
func (h *AdminHandler) RunReconciliation(c *gin.Context) {
	report, err := h.reconciler.Run(c.Request.Context())
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	response.OK(c, report)
}
