package dto

import "time"

// WebhookPayload is the inbound funding event body posted by a provider.
// The provider name comes from the URL, the signature from the header; both
// are verified downstream, never here.
type WebhookPayload struct {
	EventType     string    `json:"event_type" binding:"required,max=100"`
	Reference     string    `json:"reference" binding:"required,max=100,safe_id"`
	AccountNumber string    `json:"account_number" binding:"required,max=32"`
	Amount        int64     `json:"amount" binding:"required,gt=0"`
	Currency      string    `json:"currency" binding:"required,len=3"`
	Timestamp     time.Time `json:"timestamp"`
}

// WebhookAckResponse acknowledges receipt before processing completes.
type WebhookAckResponse struct {
	EventID string `json:"event_id"`
	State   string `json:"state"`
}

// TransferRequest is the request body for an outbound bank transfer.
type TransferRequest struct {
	Reference          string `json:"reference" binding:"required,max=100,safe_id"`
	DestinationAccount string `json:"destination_account" binding:"required,max=32"`
	DestinationBank    string `json:"destination_bank" binding:"required,max=16"`
	Amount             int64  `json:"amount" binding:"required,gt=0"`
	Description        string `json:"description,omitempty" binding:"max=200"`
	Pin                string `json:"pin" binding:"required,min=4,max=12"`
}

// AdjustmentRequest is the request body for a manual balance adjustment.
// Delta may be negative; Reference is the adjustment's idempotency key.
type AdjustmentRequest struct {
	WalletID  string `json:"wallet_id" binding:"required,uuid"`
	Delta     int64  `json:"delta" binding:"required"`
	Reference string `json:"reference" binding:"required,max=100,safe_id"`
	Reason    string `json:"reason" binding:"required,max=200"`
}

// EntryListResponse wraps a paginated ledger read.
type EntryListResponse struct {
	Items    interface{} `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}
