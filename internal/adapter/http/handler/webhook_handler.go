package handler

import (
	"io"

	"wallet-ledger-core/internal/adapter/http/dto"
	"wallet-ledger-core/internal/adapter/http/middleware"
	"wallet-ledger-core/internal/core/ports"
	"wallet-ledger-core/pkg/apperror"
	"wallet-ledger-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// WebhookHandler receives provider funding events.
type WebhookHandler struct {
	pipeline ports.WebhookPipeline
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(pipeline ports.WebhookPipeline) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline}
}

// Receive handles POST /api/v1/webhooks/:provider. The event is persisted and
// acknowledged with 202 before processing; signature verification happens in
// the pipeline so a bad signature still leaves a durable REJECTED row.
func (h *WebhookHandler) Receive(c *gin.Context) {
	provider := c.Param("provider")

	// The signature covers the raw bytes, so the body is read before binding.
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	var payload dto.WebhookPayload
	if err := binding.JSON.BindBody(raw, &payload); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	event, err := h.pipeline.Accept(c.Request.Context(), ports.InboundEvent{
		Provider:      provider,
		EventType:     payload.EventType,
		Reference:     payload.Reference,
		AccountNumber: payload.AccountNumber,
		Amount:        payload.Amount,
		Currency:      payload.Currency,
		Timestamp:     payload.Timestamp,
		Signature:     c.GetHeader(middleware.HeaderWebhookSignature),
		RawPayload:    raw,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, dto.WebhookAckResponse{
		EventID: event.ID.String(),
		State:   string(event.State),
	})
}
