package service

import (
	"context"
	"testing"
	"time"

	"wallet-ledger-core/internal/core/domain"
	"wallet-ledger-core/internal/core/ports"
	"wallet-ledger-core/internal/core/ports/mocks"
	"wallet-ledger-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type webhookTestDeps struct {
	svc        *WebhookPipelineImpl
	eventRepo  *mocks.MockWebhookEventRepository
	walletRepo *mocks.MockWalletRepository
	ledger     *mocks.MockLedgerService
	dedupe     *mocks.MockDedupeCache
	sigSvc     *mocks.MockSignatureVerifier
	ctrl       *gomock.Controller
}

func setupWebhookPipeline(t *testing.T) *webhookTestDeps {
	ctrl := gomock.NewController(t)
	d := &webhookTestDeps{
		eventRepo:  mocks.NewMockWebhookEventRepository(ctrl),
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		ledger:     mocks.NewMockLedgerService(ctrl),
		dedupe:     mocks.NewMockDedupeCache(ctrl),
		sigSvc:     mocks.NewMockSignatureVerifier(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewWebhookPipeline(
		d.eventRepo, d.walletRepo, d.ledger, d.dedupe, d.sigSvc,
		map[string]string{"paygate": "secret-1"},
		PipelineConfig{Workers: 1, MaxAttempts: 3, RetryBaseWait: time.Millisecond, MaxAmount: 1_000_000},
		zerolog.Nop(),
	)
	return d
}

func storedEvent(id uuid.UUID, state domain.WebhookState) *domain.WebhookEvent {
	return &domain.WebhookEvent{
		ID:            id,
		Provider:      "paygate",
		EventType:     "payment.success",
		Reference:     "evt-1",
		AccountNumber: "0123456789",
		Amount:        10000,
		Currency:      "NGN",
		Signature:     "sig",
		RawPayload:    []byte(`{"ref":"evt-1"}`),
		State:         state,
		ReceivedAt:    time.Now().UTC(),
	}
}

// ==================== Accept Tests ====================

func TestWebhookPipeline_Accept_PersistsBeforeAck(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()

	d.eventRepo.EXPECT().Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, e *domain.WebhookEvent) error {
			assert.Equal(t, domain.WebhookStateReceived, e.State)
			assert.Equal(t, "paygate", e.Provider)
			return nil
		})

	event, err := d.svc.Accept(ctx, ports.InboundEvent{
		Provider:      "paygate",
		EventType:     "payment.success",
		Reference:     "evt-1",
		AccountNumber: "0123456789",
		Amount:        10000,
		Currency:      "NGN",
		Signature:     "sig",
		RawPayload:    []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateReceived, event.State)
	assert.NotEqual(t, uuid.Nil, event.ID)
}

func TestWebhookPipeline_Accept_MissingReference(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	event, err := d.svc.Accept(context.Background(), ports.InboundEvent{Provider: "paygate"})
	assert.Nil(t, event)
	assertAppError(t, err, apperror.CodeValidation)
}

// ==================== Process Tests ====================

func TestWebhookPipeline_Process_AppliesCredit(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	walletID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateReceived)
	entry := &domain.LedgerEntry{ID: uuid.New(), WalletID: walletID}

	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)
	d.dedupe.EXPECT().Seen(ctx, "paygate:evt-1").Return("", nil)
	d.sigSvc.EXPECT().Verify("secret-1", event.RawPayload, "sig").Return(true)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateValidated, "", nil).Return(nil)
	d.eventRepo.EXPECT().GetAppliedByReference(ctx, "paygate", "evt-1").Return(nil, nil)
	d.walletRepo.EXPECT().GetByAccountNumber(ctx, "0123456789").
		Return(&domain.Wallet{ID: walletID, AccountNumber: "0123456789"}, nil)
	d.ledger.EXPECT().Credit(ctx, ports.CreditParams{
		WalletID:       walletID,
		Amount:         10000,
		IdempotencyKey: "paygate:evt-1",
		Origin:         domain.OriginWebhookFunding,
		Description:    "payment.success",
		Counterparty:   "paygate",
	}).Return(entry, nil)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateApplied, "", &entry.ID).Return(nil)
	d.dedupe.EXPECT().MarkSeen(ctx, "paygate:evt-1", "APPLIED", dedupeTTL).Return(nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateApplied, processed.State)
	require.NotNil(t, processed.LedgerEntryID)
	assert.Equal(t, entry.ID, *processed.LedgerEntryID)
}

func TestWebhookPipeline_Process_TerminalEventUntouched(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateApplied)

	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateApplied, processed.State)
}

func TestWebhookPipeline_Process_CacheFastPathDuplicate(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateReceived)

	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)
	// The cache is only consulted after the delivery validates.
	gomock.InOrder(
		d.sigSvc.EXPECT().Verify("secret-1", event.RawPayload, "sig").Return(true),
		d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateValidated, "", nil).Return(nil),
		d.dedupe.EXPECT().Seen(ctx, "paygate:evt-1").Return("APPLIED", nil),
		d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateDuplicate, "", nil).Return(nil),
	)
	d.dedupe.EXPECT().MarkSeen(ctx, "paygate:evt-1", "APPLIED", dedupeTTL).Return(nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateDuplicate, processed.State)
}

// A replayed delivery that fails signature verification must end REJECTED:
// the dedupe cache cannot launder a forged payload into a DUPLICATE.
func TestWebhookPipeline_Process_ReplayWithBadSignatureRejected(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateReceived)

	// No dedupe expectations: the cached APPLIED state for this reference
	// must never be consulted when verification fails.
	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)
	d.sigSvc.EXPECT().Verify("secret-1", event.RawPayload, "sig").Return(false)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateRejected, "Invalid webhook signature", nil).Return(nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateRejected, processed.State)
	assert.Equal(t, "Invalid webhook signature", processed.RejectReason)
}

func TestWebhookPipeline_Process_DurableDuplicate(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateReceived)

	priorEntryID := uuid.New()
	prior := storedEvent(uuid.New(), domain.WebhookStateApplied)
	prior.LedgerEntryID = &priorEntryID

	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)
	d.dedupe.EXPECT().Seen(ctx, "paygate:evt-1").Return("", nil)
	d.sigSvc.EXPECT().Verify("secret-1", event.RawPayload, "sig").Return(true)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateValidated, "", nil).Return(nil)
	d.eventRepo.EXPECT().GetAppliedByReference(ctx, "paygate", "evt-1").Return(prior, nil)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateDuplicate, "", &priorEntryID).Return(nil)
	d.dedupe.EXPECT().MarkSeen(ctx, "paygate:evt-1", "APPLIED", dedupeTTL).Return(nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateDuplicate, processed.State)
	assert.Equal(t, priorEntryID, *processed.LedgerEntryID)
}

func TestWebhookPipeline_Process_InvalidSignatureRejected(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateReceived)

	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)
	d.sigSvc.EXPECT().Verify("secret-1", event.RawPayload, "sig").Return(false)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateRejected, "Invalid webhook signature", nil).Return(nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateRejected, processed.State)
	assert.Equal(t, "Invalid webhook signature", processed.RejectReason)
}

func TestWebhookPipeline_Process_UnknownProviderRejected(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateReceived)
	event.Provider = "ghost"

	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateRejected, gomock.Any(), nil).Return(nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateRejected, processed.State)
}

func TestWebhookPipeline_Process_AmountAboveCeilingRejected(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateReceived)
	event.Amount = 2_000_000

	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)
	d.sigSvc.EXPECT().Verify("secret-1", event.RawPayload, "sig").Return(true)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateRejected, gomock.Any(), nil).Return(nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateRejected, processed.State)
}

func TestWebhookPipeline_Process_DuplicateCreditMarksDuplicate(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	walletID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateReceived)
	existing := &domain.LedgerEntry{ID: uuid.New(), WalletID: walletID}

	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)
	d.dedupe.EXPECT().Seen(ctx, "paygate:evt-1").Return("", nil)
	d.sigSvc.EXPECT().Verify("secret-1", event.RawPayload, "sig").Return(true)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateValidated, "", nil).Return(nil)
	d.eventRepo.EXPECT().GetAppliedByReference(ctx, "paygate", "evt-1").Return(nil, nil)
	d.walletRepo.EXPECT().GetByAccountNumber(ctx, "0123456789").
		Return(&domain.Wallet{ID: walletID}, nil)
	d.ledger.EXPECT().Credit(ctx, gomock.Any()).
		Return(existing, apperror.ErrDuplicateEvent("paygate:evt-1"))
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateDuplicate, "", &existing.ID).Return(nil)
	d.dedupe.EXPECT().MarkSeen(ctx, "paygate:evt-1", "APPLIED", dedupeTTL).Return(nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateDuplicate, processed.State)
}

func TestWebhookPipeline_Process_UnknownAccountRejected(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateReceived)

	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)
	d.dedupe.EXPECT().Seen(ctx, "paygate:evt-1").Return("", nil)
	d.sigSvc.EXPECT().Verify("secret-1", event.RawPayload, "sig").Return(true)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateValidated, "", nil).Return(nil)
	d.eventRepo.EXPECT().GetAppliedByReference(ctx, "paygate", "evt-1").Return(nil, nil)
	d.walletRepo.EXPECT().GetByAccountNumber(ctx, "0123456789").Return(nil, nil)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateRejected, gomock.Any(), nil).Return(nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateRejected, processed.State)
}

func TestWebhookPipeline_Process_TransientFailureRetriesThenApplies(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	walletID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateReceived)
	entry := &domain.LedgerEntry{ID: uuid.New(), WalletID: walletID}

	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)
	d.dedupe.EXPECT().Seen(ctx, "paygate:evt-1").Return("", nil)
	d.sigSvc.EXPECT().Verify("secret-1", event.RawPayload, "sig").Return(true)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateValidated, "", nil).Return(nil)
	d.eventRepo.EXPECT().GetAppliedByReference(ctx, "paygate", "evt-1").Return(nil, nil)
	d.walletRepo.EXPECT().GetByAccountNumber(ctx, "0123456789").
		Return(&domain.Wallet{ID: walletID}, nil)
	gomock.InOrder(
		d.ledger.EXPECT().Credit(ctx, gomock.Any()).
			Return(nil, apperror.InternalError(assert.AnError)),
		d.ledger.EXPECT().Credit(ctx, gomock.Any()).Return(entry, nil),
	)
	d.eventRepo.EXPECT().IncrementAttempts(ctx, eventID).Return(nil)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateApplied, "", &entry.ID).Return(nil)
	d.dedupe.EXPECT().MarkSeen(ctx, "paygate:evt-1", "APPLIED", dedupeTTL).Return(nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateApplied, processed.State)
}

func TestWebhookPipeline_Process_ExhaustedRetriesRejected(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	walletID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateReceived)

	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)
	d.dedupe.EXPECT().Seen(ctx, "paygate:evt-1").Return("", nil)
	d.sigSvc.EXPECT().Verify("secret-1", event.RawPayload, "sig").Return(true)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateValidated, "", nil).Return(nil)
	d.eventRepo.EXPECT().GetAppliedByReference(ctx, "paygate", "evt-1").Return(nil, nil)
	d.walletRepo.EXPECT().GetByAccountNumber(ctx, "0123456789").
		Return(&domain.Wallet{ID: walletID}, nil)
	d.ledger.EXPECT().Credit(ctx, gomock.Any()).
		Return(nil, apperror.InternalError(assert.AnError)).Times(3)
	d.eventRepo.EXPECT().IncrementAttempts(ctx, eventID).Return(nil).Times(2)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateRejected, gomock.Any(), nil).Return(nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateRejected, processed.State)
}

func TestWebhookPipeline_Process_FrozenWalletRejectedWithoutRetry(t *testing.T) {
	d := setupWebhookPipeline(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	eventID := uuid.New()
	walletID := uuid.New()
	event := storedEvent(eventID, domain.WebhookStateReceived)

	d.eventRepo.EXPECT().GetByID(ctx, eventID).Return(event, nil)
	d.dedupe.EXPECT().Seen(ctx, "paygate:evt-1").Return("", nil)
	d.sigSvc.EXPECT().Verify("secret-1", event.RawPayload, "sig").Return(true)
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateValidated, "", nil).Return(nil)
	d.eventRepo.EXPECT().GetAppliedByReference(ctx, "paygate", "evt-1").Return(nil, nil)
	d.walletRepo.EXPECT().GetByAccountNumber(ctx, "0123456789").
		Return(&domain.Wallet{ID: walletID}, nil)
	d.ledger.EXPECT().Credit(ctx, gomock.Any()).
		Return(nil, apperror.ErrWalletFrozen())
	d.eventRepo.EXPECT().UpdateState(ctx, eventID, domain.WebhookStateRejected, gomock.Any(), nil).Return(nil)

	processed, err := d.svc.Process(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStateRejected, processed.State)
}
