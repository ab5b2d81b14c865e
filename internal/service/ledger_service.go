package service

import (
	"context"
	"fmt"
	"time"

	"wallet-ledger-core/internal/core/domain"
	"wallet-ledger-core/internal/core/ports"
	"wallet-ledger-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService. Every mutation runs
// inside one database transaction with the wallet row locked, so the balance
// and its entries can never be observed out of agreement.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	auditRepo  ports.AuditRepository
	feeCalc    ports.FeeCalculator
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	auditRepo ports.AuditRepository,
	feeCalc ports.FeeCalculator,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		auditRepo:  auditRepo,
		feeCalc:    feeCalc,
		transactor: transactor,
		log:        log,
	}
}

// Credit applies a funding credit. Idempotent: an existing PENDING or APPLIED
// entry for the same key returns DuplicateEvent together with that entry, so
// callers can treat the retry as success.
func (s *LedgerServiceImpl) Credit(ctx context.Context, params ports.CreditParams) (*domain.LedgerEntry, error) {
	if params.Amount <= 0 {
		return nil, apperror.Validation("credit amount must be positive")
	}
	if params.IdempotencyKey == "" {
		return nil, apperror.Validation("idempotency key is required")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.lockWallet(ctx, dbTx, params.WalletID)
	if err != nil {
		return nil, err
	}

	if existing, err := s.findDuplicate(ctx, dbTx, wallet.ID, params.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, apperror.ErrDuplicateEvent(params.IdempotencyKey)
	}

	seq, err := s.ledgerRepo.NextSeq(ctx, dbTx, wallet.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("next seq: %w", err))
	}

	now := time.Now().UTC()
	newBalance := wallet.Balance + params.Amount
	entry := &domain.LedgerEntry{
		ID:                  uuid.New(),
		WalletID:            wallet.ID,
		Seq:                 seq,
		Kind:                domain.EntryKindCredit,
		Origin:              params.Origin,
		Amount:              params.Amount,
		IdempotencyKey:      params.IdempotencyKey,
		Status:              domain.EntryStatusApplied,
		BalanceAfter:        newBalance,
		CounterpartyAccount: params.Counterparty,
		Description:         params.Description,
		CreatedAt:           now,
		ProcessedAt:         &now,
	}

	if err := s.persistEntry(ctx, dbTx, wallet, entry, newBalance); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("wallet_id", wallet.ID.String()).
		Str("idempotency_key", params.IdempotencyKey).
		Int64("amount", params.Amount).
		Int64("balance_after", newBalance).
		Msg("ledger credit applied")

	return entry, nil
}

// Debit reserves amount+fee as a PENDING entry. The fee is quoted inside the
// locked transaction and a consumed free-transfer allowance is decremented in
// the same transaction, never as a separate read-then-write.
func (s *LedgerServiceImpl) Debit(ctx context.Context, params ports.DebitParams) (*domain.LedgerEntry, error) {
	if params.Amount <= 0 {
		return nil, apperror.Validation("debit amount must be positive")
	}
	if params.IdempotencyKey == "" {
		return nil, apperror.Validation("idempotency key is required")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.lockWallet(ctx, dbTx, params.WalletID)
	if err != nil {
		return nil, err
	}

	if existing, err := s.findDuplicate(ctx, dbTx, wallet.ID, params.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, apperror.ErrDuplicateEvent(params.IdempotencyKey)
	}

	now := time.Now().UTC()
	allowance := 0
	if params.Schedule != nil {
		allowance = wallet.FreeTransfersRemaining(params.Schedule.FreeTransfersPerDay, now)
	}
	quote := s.feeCalc.QuoteWithAllowance(params.Schedule, params.Amount, params.Kind, params.Provider, allowance)

	total := params.Amount + quote.Fee
	if wallet.Balance < total {
		return nil, apperror.ErrInsufficientBalance()
	}

	seq, err := s.ledgerRepo.NextSeq(ctx, dbTx, wallet.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("next seq: %w", err))
	}

	newBalance := wallet.Balance - total
	entry := &domain.LedgerEntry{
		ID:                  uuid.New(),
		WalletID:            wallet.ID,
		Seq:                 seq,
		Kind:                domain.EntryKindDebit,
		Origin:              params.Origin,
		Amount:              params.Amount,
		Fee:                 quote.Fee,
		IdempotencyKey:      params.IdempotencyKey,
		Status:              domain.EntryStatusPending,
		BalanceAfter:        newBalance,
		CounterpartyAccount: params.DestinationAccount,
		CounterpartyBank:    params.DestinationBank,
		Description:         params.Description,
		CreatedAt:           now,
	}

	if err := s.persistEntry(ctx, dbTx, wallet, entry, newBalance); err != nil {
		return nil, err
	}

	if quote.UsedFreeTransfer {
		day := now.Truncate(24 * time.Hour)
		used := 1
		if wallet.FreeTransfersDay.Equal(day) {
			used = wallet.FreeTransfersUsed + 1
		}
		if err := s.walletRepo.UpdateFreeTransfers(ctx, dbTx, wallet.ID, used, day); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update free transfers: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("wallet_id", wallet.ID.String()).
		Str("idempotency_key", params.IdempotencyKey).
		Int64("amount", params.Amount).
		Int64("fee", quote.Fee).
		Bool("free_transfer", quote.UsedFreeTransfer).
		Msg("ledger debit reserved")

	return entry, nil
}

// ApplyDebit settles a PENDING debit after the external operation succeeded.
// Idempotent on an already-APPLIED entry.
func (s *LedgerServiceImpl) ApplyDebit(ctx context.Context, entryID uuid.UUID, providerRef string) (*domain.LedgerEntry, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry, err := s.ledgerRepo.GetByIDForUpdate(ctx, dbTx, entryID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock entry: %w", err))
	}
	if entry == nil {
		return nil, apperror.ErrEntryNotFound()
	}
	if entry.Status == domain.EntryStatusApplied {
		return entry, nil
	}
	if entry.Kind != domain.EntryKindDebit || entry.Status != domain.EntryStatusPending {
		return nil, apperror.ErrEntryStateConflict(fmt.Sprintf("cannot apply %s %s entry", entry.Status, entry.Kind))
	}

	// Funds were reserved at debit time; settling changes no balance.
	if err := s.ledgerRepo.UpdateStatus(ctx, dbTx, entry.ID, domain.EntryStatusApplied, providerRef); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("apply debit: %w", err))
	}
	if err := s.auditRepo.UpdateStatus(ctx, dbTx, entry.ID, domain.EntryStatusApplied); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update audit status: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	now := time.Now().UTC()
	entry.Status = domain.EntryStatusApplied
	entry.ProviderReference = providerRef
	entry.ProcessedAt = &now

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("wallet_id", entry.WalletID.String()).
		Str("provider_reference", providerRef).
		Msg("ledger debit applied")

	return entry, nil
}

// Reverse compensates a PENDING or APPLIED debit, restoring amount+fee.
// Reversing an already-reversed entry is a no-op returning the existing
// reversal.
func (s *LedgerServiceImpl) Reverse(ctx context.Context, entryID uuid.UUID, reason string) (*domain.LedgerEntry, error) {
	// Read outside the transaction to learn the wallet, then lock the wallet
	// first: all mutations take the wallet lock before touching entries.
	peek, err := s.ledgerRepo.GetByID(ctx, entryID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get entry: %w", err))
	}
	if peek == nil {
		return nil, apperror.ErrEntryNotFound()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, peek.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	entry, err := s.ledgerRepo.GetByIDForUpdate(ctx, dbTx, entryID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock entry: %w", err))
	}
	if entry == nil {
		return nil, apperror.ErrEntryNotFound()
	}

	if existing, err := s.ledgerRepo.GetReversalOf(ctx, dbTx, entry.ID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find existing reversal: %w", err))
	} else if existing != nil {
		return existing, nil
	}

	if !entry.IsReversible() {
		return nil, apperror.ErrEntryStateConflict(fmt.Sprintf("cannot reverse %s %s entry", entry.Status, entry.Kind))
	}

	seq, err := s.ledgerRepo.NextSeq(ctx, dbTx, wallet.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("next seq: %w", err))
	}

	now := time.Now().UTC()
	restored := entry.Amount + entry.Fee
	newBalance := wallet.Balance + restored
	reversal := &domain.LedgerEntry{
		ID:              uuid.New(),
		WalletID:        wallet.ID,
		Seq:             seq,
		Kind:            domain.EntryKindReversal,
		Origin:          domain.OriginReversal,
		Amount:          entry.Amount,
		Fee:             entry.Fee,
		IdempotencyKey:  entry.IdempotencyKey + ":reversal",
		Status:          domain.EntryStatusApplied,
		BalanceAfter:    newBalance,
		ReversedEntryID: &entry.ID,
		Description:     reason,
		CreatedAt:       now,
		ProcessedAt:     &now,
	}

	if err := s.ledgerRepo.UpdateStatus(ctx, dbTx, entry.ID, domain.EntryStatusReversed, entry.ProviderReference); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark entry reversed: %w", err))
	}
	if err := s.auditRepo.UpdateStatus(ctx, dbTx, entry.ID, domain.EntryStatusReversed); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update audit status: %w", err))
	}
	if err := s.persistEntry(ctx, dbTx, wallet, reversal, newBalance); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Str("reversal_id", reversal.ID.String()).
		Str("wallet_id", wallet.ID.String()).
		Int64("restored", restored).
		Str("reason", reason).
		Msg("ledger debit reversed")

	return reversal, nil
}

// InternalTransfer moves funds between two platform wallets atomically.
// Both wallet rows are locked in ascending ID order to avoid deadlock.
func (s *LedgerServiceImpl) InternalTransfer(ctx context.Context, params ports.InternalTransferParams) (*ports.InternalTransferResult, error) {
	if params.Amount <= 0 {
		return nil, apperror.Validation("transfer amount must be positive")
	}
	if params.Fee < 0 {
		return nil, apperror.Validation("fee cannot be negative")
	}
	if params.FromWalletID == params.ToWalletID {
		return nil, apperror.Validation("cannot transfer to the same wallet")
	}
	if params.IdempotencyKey == "" {
		return nil, apperror.Validation("idempotency key is required")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	first, second := params.FromWalletID, params.ToWalletID
	if second.String() < first.String() {
		first, second = second, first
	}
	wallets := make(map[uuid.UUID]*domain.Wallet, 2)
	for _, id := range []uuid.UUID{first, second} {
		w, err := s.lockWallet(ctx, dbTx, id)
		if err != nil {
			return nil, err
		}
		wallets[id] = w
	}
	from := wallets[params.FromWalletID]
	to := wallets[params.ToWalletID]

	if existing, err := s.findDuplicate(ctx, dbTx, from.ID, params.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperror.ErrDuplicateEvent(params.IdempotencyKey)
	}

	total := params.Amount + params.Fee
	if from.Balance < total {
		return nil, apperror.ErrInsufficientBalance()
	}

	now := time.Now().UTC()

	debitSeq, err := s.ledgerRepo.NextSeq(ctx, dbTx, from.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("next seq (debit): %w", err))
	}
	fromBalance := from.Balance - total
	debit := &domain.LedgerEntry{
		ID:                 uuid.New(),
		WalletID:           from.ID,
		Seq:                debitSeq,
		Kind:               domain.EntryKindDebit,
		Origin:             domain.OriginInternalTransfer,
		Amount:             params.Amount,
		Fee:                params.Fee,
		IdempotencyKey:     params.IdempotencyKey,
		Status:             domain.EntryStatusApplied,
		BalanceAfter:       fromBalance,
		CounterpartyWallet: &to.ID,
		Description:        params.Description,
		CreatedAt:          now,
		ProcessedAt:        &now,
	}
	if err := s.persistEntry(ctx, dbTx, from, debit, fromBalance); err != nil {
		return nil, err
	}

	creditSeq, err := s.ledgerRepo.NextSeq(ctx, dbTx, to.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("next seq (credit): %w", err))
	}
	toBalance := to.Balance + params.Amount
	credit := &domain.LedgerEntry{
		ID:                 uuid.New(),
		WalletID:           to.ID,
		Seq:                creditSeq,
		Kind:               domain.EntryKindCredit,
		Origin:             domain.OriginInternalTransfer,
		Amount:             params.Amount,
		IdempotencyKey:     params.IdempotencyKey + ":credit",
		Status:             domain.EntryStatusApplied,
		BalanceAfter:       toBalance,
		CounterpartyWallet: &from.ID,
		Description:        params.Description,
		CreatedAt:          now,
		ProcessedAt:        &now,
	}
	if err := s.persistEntry(ctx, dbTx, to, credit, toBalance); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("from_wallet", from.ID.String()).
		Str("to_wallet", to.ID.String()).
		Str("idempotency_key", params.IdempotencyKey).
		Int64("amount", params.Amount).
		Int64("fee", params.Fee).
		Msg("internal transfer completed")

	return &ports.InternalTransferResult{DebitEntry: debit, CreditEntry: credit}, nil
}

// AdminAdjust records an explicit, audited manual adjustment as an ordinary
// ledger entry with its own idempotency key. Never a direct balance write.
func (s *LedgerServiceImpl) AdminAdjust(ctx context.Context, params ports.AdminAdjustParams) (*domain.LedgerEntry, error) {
	if params.Delta == 0 {
		return nil, apperror.Validation("adjustment delta cannot be zero")
	}
	if params.Reference == "" {
		return nil, apperror.Validation("adjustment reference is required")
	}

	key := domain.AdjustmentIdempotencyKey(params.Reference)
	if params.Delta > 0 {
		return s.Credit(ctx, ports.CreditParams{
			WalletID:       params.WalletID,
			Amount:         params.Delta,
			IdempotencyKey: key,
			Origin:         domain.OriginAdminAdjustment,
			Description:    params.Reason,
		})
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.lockWallet(ctx, dbTx, params.WalletID)
	if err != nil {
		return nil, err
	}

	if existing, err := s.findDuplicate(ctx, dbTx, wallet.ID, key); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, apperror.ErrDuplicateEvent(key)
	}

	amount := -params.Delta
	if wallet.Balance < amount {
		return nil, apperror.ErrInsufficientBalance()
	}

	seq, err := s.ledgerRepo.NextSeq(ctx, dbTx, wallet.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("next seq: %w", err))
	}

	now := time.Now().UTC()
	newBalance := wallet.Balance - amount
	entry := &domain.LedgerEntry{
		ID:             uuid.New(),
		WalletID:       wallet.ID,
		Seq:            seq,
		Kind:           domain.EntryKindDebit,
		Origin:         domain.OriginAdminAdjustment,
		Amount:         amount,
		IdempotencyKey: key,
		Status:         domain.EntryStatusApplied,
		BalanceAfter:   newBalance,
		Description:    params.Reason,
		CreatedAt:      now,
		ProcessedAt:    &now,
	}

	if err := s.persistEntry(ctx, dbTx, wallet, entry, newBalance); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Warn().
		Str("entry_id", entry.ID.String()).
		Str("wallet_id", wallet.ID.String()).
		Str("reference", params.Reference).
		Int64("delta", params.Delta).
		Str("reason", params.Reason).
		Msg("admin adjustment applied")

	return entry, nil
}

// GetBalance returns the available and settled balances.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, walletID uuid.UUID) (*ports.BalanceView, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	settled, err := s.ledgerRepo.SumAppliedDeltas(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum applied deltas: %w", err))
	}

	return &ports.BalanceView{
		WalletID:  wallet.ID,
		Currency:  wallet.Currency,
		Available: wallet.Balance,
		Settled:   settled,
	}, nil
}

// lockWallet fetches a wallet FOR UPDATE and applies the common guards.
func (s *LedgerServiceImpl) lockWallet(ctx context.Context, dbTx pgx.Tx, walletID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if wallet.Frozen {
		return nil, apperror.ErrWalletFrozen()
	}
	return wallet, nil
}

// findDuplicate returns a live (PENDING/APPLIED) entry for the key, if any.
// REVERSED and FAILED entries do not block a retry.
func (s *LedgerServiceImpl) findDuplicate(ctx context.Context, dbTx pgx.Tx, walletID uuid.UUID, key string) (*domain.LedgerEntry, error) {
	existing, err := s.ledgerRepo.GetByIdempotencyKey(ctx, dbTx, walletID, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency check: %w", err))
	}
	if existing != nil &&
		(existing.Status == domain.EntryStatusPending || existing.Status == domain.EntryStatusApplied) {
		return existing, nil
	}
	return nil, nil
}

// persistEntry writes the balance, the entry and its audit projection in the
// caller's transaction.
func (s *LedgerServiceImpl) persistEntry(ctx context.Context, dbTx pgx.Tx, wallet *domain.Wallet, entry *domain.LedgerEntry, newBalance int64) error {
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance); err != nil {
		return apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	if err := s.ledgerRepo.Create(ctx, dbTx, entry); err != nil {
		return apperror.InternalError(fmt.Errorf("create entry: %w", err))
	}
	if err := s.auditRepo.Create(ctx, dbTx, domain.ProjectAuditRecord(entry, wallet.UserID)); err != nil {
		return apperror.InternalError(fmt.Errorf("create audit record: %w", err))
	}
	return nil
}
