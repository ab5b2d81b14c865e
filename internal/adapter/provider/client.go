package provider

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger-core/config"
	"wallet-ledger-core/internal/core/ports"
	"wallet-ledger-core/pkg/apperror"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Client implements ports.TransferProvider over a provider's REST API.
// One Client per configured provider; the executor tries them in priority
// order.
type Client struct {
	name string
	http *resty.Client
	log  zerolog.Logger
}

// NewClient builds a provider client from its configuration.
func NewClient(cfg config.ProviderConfig, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json")

	return &Client{
		name: cfg.Name,
		http: httpClient,
		log:  log.With().Str("provider", cfg.Name).Logger(),
	}
}

// Name returns the configured provider name.
func (c *Client) Name() string {
	return c.name
}

type errorBody struct {
	Message string `json:"message"`
}

// classify maps a provider response to the transient/rejected split. Network
// failures and 5xx answers are transient; a 4xx answer is a definitive
// business rejection.
func (c *Client) classify(resp *resty.Response, err error) error {
	if err != nil {
		return apperror.ErrProviderTransient(c.name, err)
	}
	if !resp.IsError() {
		return nil
	}
	if resp.StatusCode() >= 500 {
		return apperror.ErrProviderTransient(c.name, fmt.Errorf("status %d", resp.StatusCode()))
	}

	reason := fmt.Sprintf("status %d", resp.StatusCode())
	if body, ok := resp.Error().(*errorBody); ok && body.Message != "" {
		reason = body.Message
	}
	return apperror.ErrProviderRejected(c.name, reason)
}

type listBanksResponse struct {
	Banks []ports.Bank `json:"banks"`
}

// ListBanks fetches the provider's destination bank directory.
func (c *Client) ListBanks(ctx context.Context) ([]ports.Bank, error) {
	result := &listBanksResponse{}

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&errorBody{}).
		Get("/banks")
	if err := c.classify(resp, err); err != nil {
		return nil, err
	}

	return result.Banks, nil
}

type resolveAccountResponse struct {
	AccountName string `json:"account_name"`
}

// ResolveAccount returns the registered holder name for an account, or a
// rejection when the provider does not know the account.
func (c *Client) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (string, error) {
	result := &resolveAccountResponse{}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("account_number", accountNumber).
		SetQueryParam("bank_code", bankCode).
		SetResult(result).
		SetError(&errorBody{}).
		Get("/accounts/resolve")
	if err := c.classify(resp, err); err != nil {
		return "", err
	}

	if result.AccountName == "" {
		return "", apperror.ErrProviderRejected(c.name, "account could not be resolved")
	}
	return result.AccountName, nil
}

type submitTransferRequest struct {
	Reference          string `json:"reference"`
	DestinationAccount string `json:"destination_account"`
	DestinationBank    string `json:"destination_bank"`
	Amount             int64  `json:"amount"`
	Currency           string `json:"currency"`
	Narration          string `json:"narration,omitempty"`
}

type submitTransferResponse struct {
	Status            string `json:"status"`
	ProviderReference string `json:"provider_reference"`
	Message           string `json:"message"`
}

// SubmitTransfer submits one outbound transfer. A context deadline hit here
// is ambiguous: the caller must not assume the transfer failed.
func (c *Client) SubmitTransfer(ctx context.Context, transfer ports.ProviderTransfer) (*ports.ProviderTransferResult, error) {
	result := &submitTransferResponse{}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(submitTransferRequest{
			Reference:          transfer.Reference,
			DestinationAccount: transfer.DestinationAccount,
			DestinationBank:    transfer.DestinationBank,
			Amount:             transfer.Amount,
			Currency:           transfer.Currency,
			Narration:          transfer.Narration,
		}).
		SetResult(result).
		SetError(&errorBody{}).
		Post("/transfers")
	if err != nil {
		// Preserve deadline/cancel errors so the executor can tell an
		// ambiguous submission apart from a plain connection failure.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperror.ErrProviderTransient(c.name, err)
	}
	if err := c.classify(resp, nil); err != nil {
		return nil, err
	}

	switch result.Status {
	case "SUCCESS":
		return &ports.ProviderTransferResult{Status: ports.ProviderTransferSuccess, ProviderReference: result.ProviderReference}, nil
	case "PENDING":
		return &ports.ProviderTransferResult{Status: ports.ProviderTransferPending, ProviderReference: result.ProviderReference}, nil
	case "FAILED":
		reason := result.Message
		if reason == "" {
			reason = "transfer failed"
		}
		return nil, apperror.ErrProviderRejected(c.name, reason)
	default:
		c.log.Warn().Str("status", result.Status).Msg("Unknown provider transfer status")
		return nil, apperror.ErrProviderTransient(c.name, fmt.Errorf("unknown status %q", result.Status))
	}
}
