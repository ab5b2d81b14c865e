package service

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger-core/internal/core/domain"
	"wallet-ledger-core/internal/core/ports"
	"wallet-ledger-core/pkg/apperror"

	"github.com/rs/zerolog"
)

// TransferExecutorImpl implements ports.TransferExecutor. Funds are reserved
// with a PENDING debit before any external call, so a provider race can never
// double-spend; the debit is settled or reversed from the provider outcome.
type TransferExecutorImpl struct {
	ledger     ports.LedgerService
	walletRepo ports.WalletRepository
	feeRepo    ports.FeeConfigRepository
	pinSvc     ports.PinVerifier
	providers  []ports.TransferProvider // In priority order
	log        zerolog.Logger
}

// NewTransferExecutor creates a new TransferExecutorImpl. Providers must be
// sorted by priority; they are tried in order.
func NewTransferExecutor(
	ledger ports.LedgerService,
	walletRepo ports.WalletRepository,
	feeRepo ports.FeeConfigRepository,
	pinSvc ports.PinVerifier,
	providers []ports.TransferProvider,
	log zerolog.Logger,
) *TransferExecutorImpl {
	return &TransferExecutorImpl{
		ledger:     ledger,
		walletRepo: walletRepo,
		feeRepo:    feeRepo,
		pinSvc:     pinSvc,
		providers:  providers,
		log:        log,
	}
}

// Execute runs an outbound transfer end to end.
func (s *TransferExecutorImpl) Execute(ctx context.Context, req ports.TransferRequest) (*ports.TransferOutcome, error) {
	if req.Amount <= 0 {
		return nil, apperror.Validation("transfer amount must be positive")
	}
	if req.Reference == "" {
		return nil, apperror.Validation("transfer reference is required")
	}
	if req.DestinationAccount == "" || req.DestinationBank == "" {
		return nil, apperror.Validation("destination account and bank are required")
	}

	wallet, err := s.walletRepo.GetByID(ctx, req.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	ok, err := s.pinSvc.Verify(req.Pin, wallet.PinHash)
	if err != nil || !ok {
		// No detail on which part failed.
		return nil, apperror.ErrInvalidPin()
	}

	schedule, err := s.feeRepo.GetActiveSchedule(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load fee schedule: %w", err))
	}

	// Reserve funds before any external call.
	entry, err := s.ledger.Debit(ctx, ports.DebitParams{
		WalletID:           req.WalletID,
		Amount:             req.Amount,
		IdempotencyKey:     req.Reference,
		Origin:             domain.OriginOutboundTransfer,
		Kind:               domain.TransferKindBankTransfer,
		Provider:           "",
		Schedule:           schedule,
		Description:        req.Description,
		DestinationAccount: req.DestinationAccount,
		DestinationBank:    req.DestinationBank,
	})
	if err != nil {
		if apperror.IsCode(err, apperror.CodeDuplicateEvent) && entry != nil {
			// Retried request: report the state the earlier attempt reached.
			return s.outcomeForExisting(entry), nil
		}
		return nil, err
	}

	outcome, err := s.dispatch(ctx, req, entry)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// dispatch walks the provider chain. A provider that times out or fails with
// a 5xx-class error is skipped for the remainder of the request; the first
// definitive answer is authoritative.
func (s *TransferExecutorImpl) dispatch(ctx context.Context, req ports.TransferRequest, entry *domain.LedgerEntry) (*ports.TransferOutcome, error) {
	transfer := ports.ProviderTransfer{
		Reference:          req.Reference,
		DestinationAccount: req.DestinationAccount,
		DestinationBank:    req.DestinationBank,
		Amount:             req.Amount,
		Narration:          req.Description,
	}

	for _, provider := range s.providers {
		accountName, err := provider.ResolveAccount(ctx, req.DestinationAccount, req.DestinationBank)
		if err != nil {
			if apperror.IsCode(err, apperror.CodeProviderRejected) {
				// Definitive: the destination account does not resolve.
				return s.failTransfer(ctx, entry, provider.Name(), err)
			}
			s.log.Warn().Err(err).
				Str("provider", provider.Name()).
				Str("reference", req.Reference).
				Msg("account resolution failed, trying next provider")
			continue
		}

		result, err := provider.SubmitTransfer(ctx, transfer)
		if err != nil {
			if apperror.IsCode(err, apperror.CodeProviderRejected) {
				return s.failTransfer(ctx, entry, provider.Name(), err)
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				// The submission may have reached the provider. Leave the
				// debit PENDING for the reconciliation sweep; guessing here
				// is how balances get corrupted.
				s.log.Error().Err(err).
					Str("provider", provider.Name()).
					Str("entry_id", entry.ID.String()).
					Str("reference", req.Reference).
					Msg("transfer submission ambiguous, leaving debit pending")
				return &ports.TransferOutcome{
					Status:   ports.TransferStatusPending,
					Entry:    entry,
					Fee:      entry.Fee,
					Provider: provider.Name(),
				}, nil
			}
			s.log.Warn().Err(err).
				Str("provider", provider.Name()).
				Str("reference", req.Reference).
				Msg("transfer submission failed, trying next provider")
			continue
		}

		return s.settle(ctx, entry, provider.Name(), accountName, result)
	}

	// No provider accepted the submission, so no money moved: the
	// reservation is safe to release.
	reversal, revErr := s.ledger.Reverse(ctx, entry.ID, "all transfer providers unavailable")
	if revErr != nil {
		s.log.Error().Err(revErr).
			Str("entry_id", entry.ID.String()).
			Msg("failed to release reservation after provider exhaustion")
		return nil, apperror.InternalError(revErr)
	}
	s.log.Error().
		Str("entry_id", entry.ID.String()).
		Str("reversal_id", reversal.ID.String()).
		Str("reference", req.Reference).
		Msg("transfer failed: all providers unavailable")
	return nil, apperror.ErrProviderTransient("all", errors.New("no transfer provider available"))
}

// settle drives the ledger from a definitive or pending provider answer.
func (s *TransferExecutorImpl) settle(ctx context.Context, entry *domain.LedgerEntry, provider, accountName string, result *ports.ProviderTransferResult) (*ports.TransferOutcome, error) {
	switch result.Status {
	case ports.ProviderTransferSuccess:
		applied, err := s.ledger.ApplyDebit(ctx, entry.ID, result.ProviderReference)
		if err != nil {
			return nil, err
		}
		s.log.Info().
			Str("entry_id", applied.ID.String()).
			Str("provider", provider).
			Str("provider_reference", result.ProviderReference).
			Msg("transfer completed")
		return &ports.TransferOutcome{
			Status:            ports.TransferStatusCompleted,
			Entry:             applied,
			Fee:               applied.Fee,
			Provider:          provider,
			ProviderReference: result.ProviderReference,
			AccountName:       accountName,
		}, nil

	case ports.ProviderTransferFailed:
		return s.failTransfer(ctx, entry, provider,
			apperror.ErrProviderRejected(provider, "transfer declined"))

	default: // ProviderTransferPending
		s.log.Info().
			Str("entry_id", entry.ID.String()).
			Str("provider", provider).
			Str("provider_reference", result.ProviderReference).
			Msg("transfer pending at provider, awaiting reconciliation")
		return &ports.TransferOutcome{
			Status:            ports.TransferStatusPending,
			Entry:             entry,
			Fee:               entry.Fee,
			Provider:          provider,
			ProviderReference: result.ProviderReference,
			AccountName:       accountName,
		}, nil
	}
}

// failTransfer reverses the reservation after a definitive rejection.
func (s *TransferExecutorImpl) failTransfer(ctx context.Context, entry *domain.LedgerEntry, provider string, cause error) (*ports.TransferOutcome, error) {
	reversal, err := s.ledger.Reverse(ctx, entry.ID, fmt.Sprintf("provider %s rejected transfer", provider))
	if err != nil {
		s.log.Error().Err(err).
			Str("entry_id", entry.ID.String()).
			Str("provider", provider).
			Msg("failed to reverse debit after provider rejection")
		return nil, apperror.InternalError(err)
	}
	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("reversal_id", reversal.ID.String()).
		Str("provider", provider).
		AnErr("cause", cause).
		Msg("transfer rejected by provider, funds restored")

	entry.Status = domain.EntryStatusReversed
	return &ports.TransferOutcome{
		Status:   ports.TransferStatusFailed,
		Entry:    entry,
		Fee:      entry.Fee,
		Provider: provider,
	}, nil
}

// outcomeForExisting maps a previously created debit back to an outcome for
// an idempotent retry of the same transfer reference.
func (s *TransferExecutorImpl) outcomeForExisting(entry *domain.LedgerEntry) *ports.TransferOutcome {
	status := ports.TransferStatusPending
	switch entry.Status {
	case domain.EntryStatusApplied:
		status = ports.TransferStatusCompleted
	case domain.EntryStatusReversed, domain.EntryStatusFailed:
		status = ports.TransferStatusFailed
	}
	return &ports.TransferOutcome{
		Status:            status,
		Entry:             entry,
		Fee:               entry.Fee,
		ProviderReference: entry.ProviderReference,
	}
}
