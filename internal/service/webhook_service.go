package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger-core/internal/core/domain"
	"wallet-ledger-core/internal/core/ports"
	"wallet-ledger-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const dedupeTTL = 24 * time.Hour

// PipelineConfig bounds the ingestion pipeline's retries and sanity checks.
type PipelineConfig struct {
	Workers       int
	MaxAttempts   int
	RetryBaseWait time.Duration
	MaxAmount     int64
}

// WebhookPipelineImpl implements ports.WebhookPipeline. An inbound event is
// persisted RECEIVED before any processing, then driven to exactly one of the
// terminal states APPLIED, DUPLICATE or REJECTED.
type WebhookPipelineImpl struct {
	eventRepo  ports.WebhookEventRepository
	walletRepo ports.WalletRepository
	ledger     ports.LedgerService
	dedupe     ports.DedupeCache
	sigSvc     ports.SignatureVerifier
	secrets    map[string]string // provider name -> webhook secret
	cfg        PipelineConfig
	jobs       chan uuid.UUID
	log        zerolog.Logger
}

// NewWebhookPipeline creates a new WebhookPipelineImpl.
func NewWebhookPipeline(
	eventRepo ports.WebhookEventRepository,
	walletRepo ports.WalletRepository,
	ledger ports.LedgerService,
	dedupe ports.DedupeCache,
	sigSvc ports.SignatureVerifier,
	secrets map[string]string,
	cfg PipelineConfig,
	log zerolog.Logger,
) *WebhookPipelineImpl {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBaseWait <= 0 {
		cfg.RetryBaseWait = 500 * time.Millisecond
	}
	return &WebhookPipelineImpl{
		eventRepo:  eventRepo,
		walletRepo: walletRepo,
		ledger:     ledger,
		dedupe:     dedupe,
		sigSvc:     sigSvc,
		secrets:    secrets,
		cfg:        cfg,
		jobs:       make(chan uuid.UUID, cfg.Workers*16),
		log:        log,
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (s *WebhookPipelineImpl) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		go s.worker(ctx)
	}
	s.log.Info().Int("workers", s.cfg.Workers).Msg("webhook pipeline started")
}

func (s *WebhookPipelineImpl) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.jobs:
			if _, err := s.Process(ctx, id); err != nil {
				s.log.Error().Err(err).Str("event_id", id.String()).Msg("webhook processing failed")
			}
		}
	}
}

// Accept persists the delivery durably and enqueues it for processing. It
// returns as soon as the RECEIVED record is stored so the transport can
// acknowledge the provider immediately.
func (s *WebhookPipelineImpl) Accept(ctx context.Context, in ports.InboundEvent) (*domain.WebhookEvent, error) {
	if in.Provider == "" || in.Reference == "" {
		return nil, apperror.Validation("provider and reference are required")
	}

	event := &domain.WebhookEvent{
		ID:            uuid.New(),
		Provider:      in.Provider,
		EventType:     in.EventType,
		Reference:     in.Reference,
		AccountNumber: in.AccountNumber,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Signature:     in.Signature,
		RawPayload:    in.RawPayload,
		State:         domain.WebhookStateReceived,
		ReceivedAt:    time.Now().UTC(),
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("persist webhook event: %w", err))
	}

	select {
	case s.jobs <- event.ID:
	default:
		// Queue full: process inline rather than dropping the event.
		go func() {
			if _, err := s.Process(context.WithoutCancel(ctx), event.ID); err != nil {
				s.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("inline webhook processing failed")
			}
		}()
	}

	return event, nil
}

// Process drives one stored event to a terminal state. It is idempotent and
// safe to call from the reconciliation resubmit sweep.
func (s *WebhookPipelineImpl) Process(ctx context.Context, eventID uuid.UUID) (*domain.WebhookEvent, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load webhook event: %w", err))
	}
	if event == nil {
		return nil, apperror.InternalError(fmt.Errorf("webhook event %s not found", eventID))
	}
	if event.IsTerminal() {
		return event, nil
	}

	key := domain.EventIdempotencyKey(event.Provider, event.Reference)

	// Validation gates dedupe: a replayed delivery with a forged signature
	// must end REJECTED, not ride the cache to DUPLICATE.
	if rejection := s.validate(event); rejection != nil {
		return s.reject(ctx, event, rejection)
	}
	if event.State == domain.WebhookStateReceived {
		if err := s.eventRepo.UpdateState(ctx, event.ID, domain.WebhookStateValidated, "", nil); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("mark validated: %w", err))
		}
		event.State = domain.WebhookStateValidated
	}

	// Fast path: a terminal result for this key is already cached.
	if state, err := s.dedupe.Seen(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("dedupe cache check failed, falling through to store")
	} else if state == string(domain.WebhookStateApplied) {
		return s.markDuplicate(ctx, event, key, nil)
	}

	// Durable dedupe: a prior delivery already applied this key.
	if prior, err := s.eventRepo.GetAppliedByReference(ctx, event.Provider, event.Reference); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("dedupe lookup: %w", err))
	} else if prior != nil && prior.ID != event.ID {
		return s.markDuplicate(ctx, event, key, prior.LedgerEntryID)
	}

	wallet, err := s.walletRepo.GetByAccountNumber(ctx, event.AccountNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("resolve wallet: %w", err))
	}
	if wallet == nil {
		return s.reject(ctx, event, apperror.ErrEventRejected(fmt.Sprintf("no wallet for account %s", event.AccountNumber)))
	}

	return s.applyCredit(ctx, event, wallet.ID, key)
}

// applyCredit drives the ledger credit with bounded retries on transient
// store failures. The event never stays RECEIVED/VALIDATED past this point:
// it ends APPLIED, DUPLICATE, or REJECTED for the reconciliation sweep.
func (s *WebhookPipelineImpl) applyCredit(ctx context.Context, event *domain.WebhookEvent, walletID uuid.UUID, key string) (*domain.WebhookEvent, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := s.cfg.RetryBaseWait << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			if err := s.eventRepo.IncrementAttempts(ctx, event.ID); err != nil {
				s.log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("failed to record retry attempt")
			}
		}

		entry, err := s.ledger.Credit(ctx, ports.CreditParams{
			WalletID:       walletID,
			Amount:         event.Amount,
			IdempotencyKey: key,
			Origin:         domain.OriginWebhookFunding,
			Description:    event.EventType,
			Counterparty:   event.Provider,
		})

		switch {
		case err == nil:
			if err := s.eventRepo.UpdateState(ctx, event.ID, domain.WebhookStateApplied, "", &entry.ID); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("mark applied: %w", err))
			}
			s.cacheSeen(ctx, key, domain.WebhookStateApplied)
			event.State = domain.WebhookStateApplied
			event.LedgerEntryID = &entry.ID
			s.log.Info().
				Str("event_id", event.ID.String()).
				Str("entry_id", entry.ID.String()).
				Str("key", key).
				Int64("amount", event.Amount).
				Msg("webhook funding applied")
			return event, nil

		case apperror.IsCode(err, apperror.CodeDuplicateEvent):
			var entryID *uuid.UUID
			if entry != nil {
				entryID = &entry.ID
			}
			return s.markDuplicate(ctx, event, key, entryID)

		case apperror.IsCode(err, apperror.CodeInternal):
			// Transient store failure: retry with backoff.
			lastErr = err
			s.log.Warn().Err(err).
				Str("event_id", event.ID.String()).
				Int("attempt", attempt+1).
				Msg("transient ledger failure, retrying")

		default:
			// Definitive ledger refusal (frozen, not found, validation).
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) {
				appErr = apperror.ErrEventRejected(err.Error())
			}
			return s.reject(ctx, event, appErr)
		}
	}

	return s.reject(ctx, event, apperror.ErrEventRejected(
		fmt.Sprintf("transient failure after %d attempts: %v", s.cfg.MaxAttempts, lastErr)))
}

// validate applies signature and sanity checks. Nil return means valid.
func (s *WebhookPipelineImpl) validate(event *domain.WebhookEvent) *apperror.AppError {
	secret, ok := s.secrets[event.Provider]
	if !ok {
		return apperror.ErrEventRejected(fmt.Sprintf("unknown provider %q", event.Provider))
	}
	if !s.sigSvc.Verify(secret, event.RawPayload, event.Signature) {
		return apperror.ErrInvalidSignature()
	}
	if event.AccountNumber == "" {
		return apperror.ErrEventRejected("missing account number")
	}
	if event.Amount <= 0 {
		return apperror.ErrEventRejected("amount must be positive")
	}
	if s.cfg.MaxAmount > 0 && event.Amount > s.cfg.MaxAmount {
		return apperror.ErrEventRejected(fmt.Sprintf("amount %d exceeds sanity ceiling %d", event.Amount, s.cfg.MaxAmount))
	}
	return nil
}

func (s *WebhookPipelineImpl) markDuplicate(ctx context.Context, event *domain.WebhookEvent, key string, entryID *uuid.UUID) (*domain.WebhookEvent, error) {
	if err := s.eventRepo.UpdateState(ctx, event.ID, domain.WebhookStateDuplicate, "", entryID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark duplicate: %w", err))
	}
	s.cacheSeen(ctx, key, domain.WebhookStateApplied)
	event.State = domain.WebhookStateDuplicate
	event.LedgerEntryID = entryID
	s.log.Info().
		Str("event_id", event.ID.String()).
		Str("key", key).
		Msg("duplicate webhook delivery")
	return event, nil
}

// reject records a terminal rejection; rejected events are never silently
// dropped and surface through reconciliation reports. The AppError message
// becomes the stored reject reason, its code the logged taxonomy entry.
func (s *WebhookPipelineImpl) reject(ctx context.Context, event *domain.WebhookEvent, rejection *apperror.AppError) (*domain.WebhookEvent, error) {
	if err := s.eventRepo.UpdateState(ctx, event.ID, domain.WebhookStateRejected, rejection.Message, nil); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark rejected: %w", err))
	}
	event.State = domain.WebhookStateRejected
	event.RejectReason = rejection.Message
	s.log.Error().
		Str("event_id", event.ID.String()).
		Str("provider", event.Provider).
		Str("reference", event.Reference).
		Str("code", rejection.Code).
		Str("reason", rejection.Message).
		Msg("webhook event rejected")
	return event, nil
}

// cacheSeen records the terminal state in the fast-path cache, best effort.
func (s *WebhookPipelineImpl) cacheSeen(ctx context.Context, key string, state domain.WebhookState) {
	if err := s.dedupe.MarkSeen(ctx, key, string(state), dedupeTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache dedupe state")
	}
}
