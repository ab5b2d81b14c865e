package service

import (
	"context"
	"testing"

	"wallet-ledger-core/internal/core/domain"
	"wallet-ledger-core/internal/core/ports"
	"wallet-ledger-core/internal/core/ports/mocks"
	"wallet-ledger-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerTestDeps struct {
	svc        *LedgerServiceImpl
	walletRepo *mocks.MockWalletRepository
	ledgerRepo *mocks.MockLedgerRepository
	auditRepo  *mocks.MockAuditRepository
	feeCalc    *mocks.MockFeeCalculator
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		ledgerRepo: mocks.NewMockLedgerRepository(ctrl),
		auditRepo:  mocks.NewMockAuditRepository(ctrl),
		feeCalc:    mocks.NewMockFeeCalculator(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewLedgerService(
		d.walletRepo, d.ledgerRepo, d.auditRepo, d.feeCalc, d.transactor, zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperror.Code(err))
}

// ==================== Credit Tests ====================

func TestLedgerService_Credit_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	tx := &mockTx{}

	wallet := &domain.Wallet{ID: walletID, UserID: uuid.New(), Balance: 5000, Currency: "NGN"}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).Return(wallet, nil)
	d.ledgerRepo.EXPECT().GetByIdempotencyKey(ctx, tx, walletID, "paygate:evt-1").Return(nil, nil)
	d.ledgerRepo.EXPECT().NextSeq(ctx, tx, walletID).Return(int64(7), nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, walletID, int64(15000)).Return(nil)
	d.ledgerRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	entry, err := d.svc.Credit(ctx, ports.CreditParams{
		WalletID:       walletID,
		Amount:         10000,
		IdempotencyKey: "paygate:evt-1",
		Origin:         domain.OriginWebhookFunding,
	})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.EntryKindCredit, entry.Kind)
	assert.Equal(t, domain.EntryStatusApplied, entry.Status)
	assert.Equal(t, int64(7), entry.Seq)
	assert.Equal(t, int64(15000), entry.BalanceAfter)
	assert.NotNil(t, entry.ProcessedAt)
}

func TestLedgerService_Credit_DuplicateReturnsExisting(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	tx := &mockTx{}

	existing := &domain.LedgerEntry{
		ID:             uuid.New(),
		WalletID:       walletID,
		Kind:           domain.EntryKindCredit,
		Amount:         10000,
		IdempotencyKey: "paygate:evt-1",
		Status:         domain.EntryStatusApplied,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).
		Return(&domain.Wallet{ID: walletID, Balance: 15000}, nil)
	d.ledgerRepo.EXPECT().GetByIdempotencyKey(ctx, tx, walletID, "paygate:evt-1").Return(existing, nil)

	entry, err := d.svc.Credit(ctx, ports.CreditParams{
		WalletID:       walletID,
		Amount:         10000,
		IdempotencyKey: "paygate:evt-1",
	})
	assertAppError(t, err, apperror.CodeDuplicateEvent)
	require.NotNil(t, entry)
	assert.Equal(t, existing.ID, entry.ID)
}

func TestLedgerService_Credit_ReversedEntryDoesNotBlockRetry(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	tx := &mockTx{}

	reversed := &domain.LedgerEntry{
		ID:     uuid.New(),
		Status: domain.EntryStatusReversed,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).
		Return(&domain.Wallet{ID: walletID, Balance: 0}, nil)
	d.ledgerRepo.EXPECT().GetByIdempotencyKey(ctx, tx, walletID, "paygate:evt-9").Return(reversed, nil)
	d.ledgerRepo.EXPECT().NextSeq(ctx, tx, walletID).Return(int64(3), nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, walletID, int64(500)).Return(nil)
	d.ledgerRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	entry, err := d.svc.Credit(ctx, ports.CreditParams{
		WalletID:       walletID,
		Amount:         500,
		IdempotencyKey: "paygate:evt-9",
	})
	require.NoError(t, err)
	assert.NotEqual(t, reversed.ID, entry.ID)
}

func TestLedgerService_Credit_InvalidAmount(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	entry, err := d.svc.Credit(context.Background(), ports.CreditParams{
		WalletID:       uuid.New(),
		Amount:         0,
		IdempotencyKey: "k",
	})
	assert.Nil(t, entry)
	assertAppError(t, err, apperror.CodeValidation)
}

func TestLedgerService_Credit_FrozenWallet(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).
		Return(&domain.Wallet{ID: walletID, Frozen: true}, nil)

	entry, err := d.svc.Credit(ctx, ports.CreditParams{
		WalletID:       walletID,
		Amount:         100,
		IdempotencyKey: "k",
	})
	assert.Nil(t, entry)
	assertAppError(t, err, apperror.CodeWalletFrozen)
}

// ==================== Debit Tests ====================

func TestLedgerService_Debit_ReservesAmountPlusFee(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	tx := &mockTx{}
	schedule := &domain.FeeSchedule{Version: 3}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).
		Return(&domain.Wallet{ID: walletID, Balance: 10000}, nil)
	d.ledgerRepo.EXPECT().GetByIdempotencyKey(ctx, tx, walletID, "txn-1").Return(nil, nil)
	d.feeCalc.EXPECT().
		QuoteWithAllowance(schedule, int64(2000), domain.TransferKindBankTransfer, "", 0).
		Return(ports.FeeQuote{Fee: 50, ScheduleVersion: 3})
	d.ledgerRepo.EXPECT().NextSeq(ctx, tx, walletID).Return(int64(2), nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, walletID, int64(7950)).Return(nil)
	d.ledgerRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	entry, err := d.svc.Debit(ctx, ports.DebitParams{
		WalletID:       walletID,
		Amount:         2000,
		IdempotencyKey: "txn-1",
		Origin:         domain.OriginOutboundTransfer,
		Kind:           domain.TransferKindBankTransfer,
		Schedule:       schedule,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EntryStatusPending, entry.Status)
	assert.Equal(t, int64(50), entry.Fee)
	assert.Equal(t, int64(7950), entry.BalanceAfter)
	assert.Nil(t, entry.ProcessedAt)
}

func TestLedgerService_Debit_InsufficientBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	tx := &mockTx{}
	schedule := &domain.FeeSchedule{Version: 1}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).
		Return(&domain.Wallet{ID: walletID, Balance: 2049}, nil)
	d.ledgerRepo.EXPECT().GetByIdempotencyKey(ctx, tx, walletID, "txn-2").Return(nil, nil)
	d.feeCalc.EXPECT().
		QuoteWithAllowance(schedule, int64(2000), domain.TransferKindBankTransfer, "", 0).
		Return(ports.FeeQuote{Fee: 50})

	entry, err := d.svc.Debit(ctx, ports.DebitParams{
		WalletID:       walletID,
		Amount:         2000,
		IdempotencyKey: "txn-2",
		Kind:           domain.TransferKindBankTransfer,
		Schedule:       schedule,
	})
	assert.Nil(t, entry)
	assertAppError(t, err, apperror.CodeInsufficientBalance)
}

func TestLedgerService_Debit_ConsumesFreeTransferAllowance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	tx := &mockTx{}
	schedule := &domain.FeeSchedule{Version: 1, FreeTransfersPerDay: 3}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).
		Return(&domain.Wallet{ID: walletID, Balance: 10000}, nil)
	d.ledgerRepo.EXPECT().GetByIdempotencyKey(ctx, tx, walletID, "txn-3").Return(nil, nil)
	d.feeCalc.EXPECT().
		QuoteWithAllowance(schedule, int64(1000), domain.TransferKindBankTransfer, "", 3).
		Return(ports.FeeQuote{Fee: 0, UsedFreeTransfer: true})
	d.ledgerRepo.EXPECT().NextSeq(ctx, tx, walletID).Return(int64(1), nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, walletID, int64(9000)).Return(nil)
	d.ledgerRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().UpdateFreeTransfers(ctx, tx, walletID, 1, gomock.Any()).Return(nil)

	entry, err := d.svc.Debit(ctx, ports.DebitParams{
		WalletID:       walletID,
		Amount:         1000,
		IdempotencyKey: "txn-3",
		Kind:           domain.TransferKindBankTransfer,
		Schedule:       schedule,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), entry.Fee)
}

// ==================== ApplyDebit Tests ====================

func TestLedgerService_ApplyDebit_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	entryID := uuid.New()
	tx := &mockTx{}

	pending := &domain.LedgerEntry{
		ID:       entryID,
		WalletID: uuid.New(),
		Kind:     domain.EntryKindDebit,
		Status:   domain.EntryStatusPending,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetByIDForUpdate(ctx, tx, entryID).Return(pending, nil)
	d.ledgerRepo.EXPECT().UpdateStatus(ctx, tx, entryID, domain.EntryStatusApplied, "prov-ref-1").Return(nil)
	d.auditRepo.EXPECT().UpdateStatus(ctx, tx, entryID, domain.EntryStatusApplied).Return(nil)

	entry, err := d.svc.ApplyDebit(ctx, entryID, "prov-ref-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryStatusApplied, entry.Status)
	assert.Equal(t, "prov-ref-1", entry.ProviderReference)
}

func TestLedgerService_ApplyDebit_AlreadyApplied(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	entryID := uuid.New()
	tx := &mockTx{}

	applied := &domain.LedgerEntry{
		ID:     entryID,
		Kind:   domain.EntryKindDebit,
		Status: domain.EntryStatusApplied,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetByIDForUpdate(ctx, tx, entryID).Return(applied, nil)

	entry, err := d.svc.ApplyDebit(ctx, entryID, "prov-ref-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryStatusApplied, entry.Status)
}

func TestLedgerService_ApplyDebit_WrongState(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	entryID := uuid.New()
	tx := &mockTx{}

	reversed := &domain.LedgerEntry{
		ID:     entryID,
		Kind:   domain.EntryKindDebit,
		Status: domain.EntryStatusReversed,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetByIDForUpdate(ctx, tx, entryID).Return(reversed, nil)

	entry, err := d.svc.ApplyDebit(ctx, entryID, "ref")
	assert.Nil(t, entry)
	assertAppError(t, err, apperror.CodeEntryStateConflict)
}

// ==================== Reverse Tests ====================

func TestLedgerService_Reverse_RestoresAmountPlusFee(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	entryID := uuid.New()
	tx := &mockTx{}

	debit := &domain.LedgerEntry{
		ID:             entryID,
		WalletID:       walletID,
		Kind:           domain.EntryKindDebit,
		Amount:         2000,
		Fee:            50,
		IdempotencyKey: "txn-1",
		Status:         domain.EntryStatusPending,
	}

	d.ledgerRepo.EXPECT().GetByID(ctx, entryID).Return(debit, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).
		Return(&domain.Wallet{ID: walletID, Balance: 7950}, nil)
	d.ledgerRepo.EXPECT().GetByIDForUpdate(ctx, tx, entryID).Return(debit, nil)
	d.ledgerRepo.EXPECT().GetReversalOf(ctx, tx, entryID).Return(nil, nil)
	d.ledgerRepo.EXPECT().NextSeq(ctx, tx, walletID).Return(int64(5), nil)
	d.ledgerRepo.EXPECT().UpdateStatus(ctx, tx, entryID, domain.EntryStatusReversed, "").Return(nil)
	d.auditRepo.EXPECT().UpdateStatus(ctx, tx, entryID, domain.EntryStatusReversed).Return(nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, walletID, int64(10000)).Return(nil)
	d.ledgerRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	reversal, err := d.svc.Reverse(ctx, entryID, "provider rejected")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryKindReversal, reversal.Kind)
	assert.Equal(t, int64(2000), reversal.Amount)
	assert.Equal(t, int64(50), reversal.Fee)
	assert.Equal(t, int64(10000), reversal.BalanceAfter)
	assert.Equal(t, "txn-1:reversal", reversal.IdempotencyKey)
	require.NotNil(t, reversal.ReversedEntryID)
	assert.Equal(t, entryID, *reversal.ReversedEntryID)
}

func TestLedgerService_Reverse_Idempotent(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	entryID := uuid.New()
	tx := &mockTx{}

	debit := &domain.LedgerEntry{
		ID:       entryID,
		WalletID: walletID,
		Kind:     domain.EntryKindDebit,
		Status:   domain.EntryStatusReversed,
	}
	existing := &domain.LedgerEntry{
		ID:   uuid.New(),
		Kind: domain.EntryKindReversal,
	}

	d.ledgerRepo.EXPECT().GetByID(ctx, entryID).Return(debit, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).
		Return(&domain.Wallet{ID: walletID}, nil)
	d.ledgerRepo.EXPECT().GetByIDForUpdate(ctx, tx, entryID).Return(debit, nil)
	d.ledgerRepo.EXPECT().GetReversalOf(ctx, tx, entryID).Return(existing, nil)

	reversal, err := d.svc.Reverse(ctx, entryID, "retry")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, reversal.ID)
}

func TestLedgerService_Reverse_CreditNotReversible(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	entryID := uuid.New()
	tx := &mockTx{}

	credit := &domain.LedgerEntry{
		ID:       entryID,
		WalletID: walletID,
		Kind:     domain.EntryKindCredit,
		Status:   domain.EntryStatusApplied,
	}

	d.ledgerRepo.EXPECT().GetByID(ctx, entryID).Return(credit, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).
		Return(&domain.Wallet{ID: walletID}, nil)
	d.ledgerRepo.EXPECT().GetByIDForUpdate(ctx, tx, entryID).Return(credit, nil)
	d.ledgerRepo.EXPECT().GetReversalOf(ctx, tx, entryID).Return(nil, nil)

	reversal, err := d.svc.Reverse(ctx, entryID, "oops")
	assert.Nil(t, reversal)
	assertAppError(t, err, apperror.CodeEntryStateConflict)
}

// ==================== InternalTransfer Tests ====================

func TestLedgerService_InternalTransfer_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	fromID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	toID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	tx := &mockTx{}

	from := &domain.Wallet{ID: fromID, Balance: 5000}
	to := &domain.Wallet{ID: toID, Balance: 100}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	// Locked in ascending ID order.
	gomock.InOrder(
		d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, fromID).Return(from, nil),
		d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, toID).Return(to, nil),
	)
	d.ledgerRepo.EXPECT().GetByIdempotencyKey(ctx, tx, fromID, "int-1").Return(nil, nil)
	d.ledgerRepo.EXPECT().NextSeq(ctx, tx, fromID).Return(int64(10), nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, fromID, int64(3990)).Return(nil)
	d.ledgerRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.ledgerRepo.EXPECT().NextSeq(ctx, tx, toID).Return(int64(4), nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, toID, int64(1100)).Return(nil)
	d.ledgerRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	result, err := d.svc.InternalTransfer(ctx, ports.InternalTransferParams{
		FromWalletID:   fromID,
		ToWalletID:     toID,
		Amount:         1000,
		Fee:            10,
		IdempotencyKey: "int-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3990), result.DebitEntry.BalanceAfter)
	assert.Equal(t, int64(1100), result.CreditEntry.BalanceAfter)
	assert.Equal(t, "int-1:credit", result.CreditEntry.IdempotencyKey)
	require.NotNil(t, result.DebitEntry.CounterpartyWallet)
	assert.Equal(t, toID, *result.DebitEntry.CounterpartyWallet)
}

func TestLedgerService_InternalTransfer_LocksInAscendingOrder(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	// From sorts after To, so To must be locked first.
	fromID := uuid.MustParse("99999999-9999-9999-9999-999999999999")
	toID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	gomock.InOrder(
		d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, toID).
			Return(&domain.Wallet{ID: toID, Balance: 0}, nil),
		d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, fromID).
			Return(&domain.Wallet{ID: fromID, Balance: 100}, nil),
	)
	d.ledgerRepo.EXPECT().GetByIdempotencyKey(ctx, tx, fromID, "int-2").Return(nil, nil)

	// Insufficient funds ends the flow after the lock ordering we care about.
	result, err := d.svc.InternalTransfer(ctx, ports.InternalTransferParams{
		FromWalletID:   fromID,
		ToWalletID:     toID,
		Amount:         1000,
		IdempotencyKey: "int-2",
	})
	assert.Nil(t, result)
	assertAppError(t, err, apperror.CodeInsufficientBalance)
}

func TestLedgerService_InternalTransfer_SameWallet(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	id := uuid.New()
	result, err := d.svc.InternalTransfer(context.Background(), ports.InternalTransferParams{
		FromWalletID:   id,
		ToWalletID:     id,
		Amount:         100,
		IdempotencyKey: "int-3",
	})
	assert.Nil(t, result)
	assertAppError(t, err, apperror.CodeValidation)
}

// ==================== AdminAdjust Tests ====================

func TestLedgerService_AdminAdjust_PositiveDeltaCredits(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).
		Return(&domain.Wallet{ID: walletID, Balance: 100}, nil)
	d.ledgerRepo.EXPECT().GetByIdempotencyKey(ctx, tx, walletID, "adjustment:fix-42").Return(nil, nil)
	d.ledgerRepo.EXPECT().NextSeq(ctx, tx, walletID).Return(int64(1), nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, walletID, int64(600)).Return(nil)
	d.ledgerRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	entry, err := d.svc.AdminAdjust(ctx, ports.AdminAdjustParams{
		WalletID:  walletID,
		Delta:     500,
		Reference: "fix-42",
		Reason:    "support ticket 42",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EntryKindCredit, entry.Kind)
	assert.Equal(t, domain.OriginAdminAdjustment, entry.Origin)
	assert.Equal(t, "adjustment:fix-42", entry.IdempotencyKey)
}

func TestLedgerService_AdminAdjust_NegativeDeltaInsufficient(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).
		Return(&domain.Wallet{ID: walletID, Balance: 100}, nil)
	d.ledgerRepo.EXPECT().GetByIdempotencyKey(ctx, tx, walletID, "adjustment:fix-43").Return(nil, nil)

	entry, err := d.svc.AdminAdjust(ctx, ports.AdminAdjustParams{
		WalletID:  walletID,
		Delta:     -500,
		Reference: "fix-43",
	})
	assert.Nil(t, entry)
	assertAppError(t, err, apperror.CodeInsufficientBalance)
}

func TestLedgerService_AdminAdjust_ZeroDelta(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	entry, err := d.svc.AdminAdjust(context.Background(), ports.AdminAdjustParams{
		WalletID:  uuid.New(),
		Delta:     0,
		Reference: "fix-44",
	})
	assert.Nil(t, entry)
	assertAppError(t, err, apperror.CodeValidation)
}

// ==================== GetBalance Tests ====================

func TestLedgerService_GetBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()

	d.walletRepo.EXPECT().GetByID(ctx, walletID).
		Return(&domain.Wallet{ID: walletID, Currency: "NGN", Balance: 7950}, nil)
	d.ledgerRepo.EXPECT().SumAppliedDeltas(ctx, walletID).Return(int64(10000), nil)

	view, err := d.svc.GetBalance(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, int64(7950), view.Available)
	assert.Equal(t, int64(10000), view.Settled)
	assert.Equal(t, "NGN", view.Currency)
}

func TestLedgerService_GetBalance_WalletNotFound(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()

	d.walletRepo.EXPECT().GetByID(ctx, walletID).Return(nil, nil)

	view, err := d.svc.GetBalance(ctx, walletID)
	assert.Nil(t, view)
	assertAppError(t, err, apperror.CodeWalletNotFound)
}
