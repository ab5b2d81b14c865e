package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"wallet-ledger-core/internal/core/domain"
	"wallet-ledger-core/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// memStore is shared in-memory state behind all repos, standing in for the
// database. The transactor below serializes mutating transactions, which
// mirrors the row-lock discipline the services rely on.
type memStore struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
	entries []*domain.LedgerEntry
	audits  []*domain.AuditRecord
	events  map[uuid.UUID]*domain.WebhookEvent
}

func newMemStore() *memStore {
	return &memStore{
		wallets: make(map[uuid.UUID]*domain.Wallet),
		events:  make(map[uuid.UUID]*domain.WebhookEvent),
	}
}

// --- Transactor ---

// memTx satisfies pgx.Tx; only Commit and Rollback are ever called by the
// services. Both release the transaction lock, whichever runs first.
type memTx struct {
	pgx.Tx
	release func()
	once    sync.Once
}

func (t *memTx) Commit(ctx context.Context) error {
	t.once.Do(t.release)
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.once.Do(t.release)
	return nil
}

type memTransactor struct {
	mu sync.Mutex
}

func (tr *memTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	tr.mu.Lock()
	tx := &memTx{}
	tx.release = tr.mu.Unlock
	return tx, nil
}

// --- Wallet Repo ---

type memWalletRepo struct {
	s *memStore
}

func copyWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	return &c
}

func (r *memWalletRepo) Create(ctx context.Context, wallet *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.wallets[wallet.ID] = copyWallet(wallet)
	return nil
}

func (r *memWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, nil
	}
	return copyWallet(w), nil
}

func (r *memWalletRepo) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, w := range r.s.wallets {
		if w.AccountNumber == accountNumber {
			return copyWallet(w), nil
		}
	}
	return nil, nil
}

func (r *memWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r *memWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	w.Balance = balance
	w.LastActivityAt = time.Now().UTC()
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memWalletRepo) UpdateFreeTransfers(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, used int, day time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	w.FreeTransfersUsed = used
	w.FreeTransfersDay = day
	return nil
}

func (r *memWalletRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.s.wallets))
	for id := range r.s.wallets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// --- Ledger Repo ---

type memLedgerRepo struct {
	s *memStore
}

func copyEntry(e *domain.LedgerEntry) *domain.LedgerEntry {
	c := *e
	return &c
}

func (r *memLedgerRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.entries = append(r.s.entries, copyEntry(entry))
	return nil
}

func (r *memLedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.entries {
		if e.ID == id {
			return copyEntry(e), nil
		}
	}
	return nil, nil
}

func (r *memLedgerRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.LedgerEntry, error) {
	return r.GetByID(ctx, id)
}

func (r *memLedgerRepo) GetByIdempotencyKey(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, key string) (*domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	// Live entries shadow terminal ones for the same key.
	var fallback *domain.LedgerEntry
	for _, e := range r.s.entries {
		if e.WalletID != walletID || e.IdempotencyKey != key {
			continue
		}
		if e.Status == domain.EntryStatusPending || e.Status == domain.EntryStatusApplied {
			return copyEntry(e), nil
		}
		fallback = e
	}
	if fallback == nil {
		return nil, nil
	}
	return copyEntry(fallback), nil
}

func (r *memLedgerRepo) GetReversalOf(ctx context.Context, tx pgx.Tx, originalID uuid.UUID) (*domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.entries {
		if e.ReversedEntryID != nil && *e.ReversedEntryID == originalID {
			return copyEntry(e), nil
		}
	}
	return nil, nil
}

func (r *memLedgerRepo) NextSeq(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var max int64
	for _, e := range r.s.entries {
		if e.WalletID == walletID && e.Seq > max {
			max = e.Seq
		}
	}
	return max + 1, nil
}

func (r *memLedgerRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.EntryStatus, providerRef string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.entries {
		if e.ID == id {
			e.Status = status
			if providerRef != "" {
				e.ProviderReference = providerRef
			}
			now := time.Now().UTC()
			e.ProcessedAt = &now
			return nil
		}
	}
	return fmt.Errorf("ledger entry not found: %s", id)
}

func (r *memLedgerRepo) SumSignedDeltas(ctx context.Context, walletID uuid.UUID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var sum int64
	for _, e := range r.s.entries {
		if e.WalletID == walletID {
			sum += e.SignedDelta()
		}
	}
	return sum, nil
}

func (r *memLedgerRepo) SumAppliedDeltas(ctx context.Context, walletID uuid.UUID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var sum int64
	for _, e := range r.s.entries {
		if e.WalletID == walletID && e.Status == domain.EntryStatusApplied {
			sum += e.SignedDelta()
		}
	}
	return sum, nil
}

func (r *memLedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var all []domain.LedgerEntry
	for _, e := range r.s.entries {
		if e.WalletID == walletID {
			all = append(all, *e)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq > all[j].Seq })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *memLedgerRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.LedgerEntry
	for _, e := range r.s.entries {
		if e.Kind == domain.EntryKindDebit && e.Status == domain.EntryStatusPending && e.CreatedAt.Before(cutoff) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *memLedgerRepo) ListKeysWithoutAudit(ctx context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	audited := make(map[uuid.UUID]bool, len(r.s.audits))
	for _, a := range r.s.audits {
		audited[a.LedgerEntryID] = true
	}
	var keys []string
	for _, e := range r.s.entries {
		if !audited[e.ID] {
			keys = append(keys, e.IdempotencyKey)
		}
	}
	return keys, nil
}

// --- Audit Repo ---

type memAuditRepo struct {
	s *memStore
}

func (r *memAuditRepo) Create(ctx context.Context, tx pgx.Tx, record *domain.AuditRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *record
	r.s.audits = append(r.s.audits, &c)
	return nil
}

func (r *memAuditRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, ledgerEntryID uuid.UUID, status domain.EntryStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.audits {
		if a.LedgerEntryID == ledgerEntryID {
			a.Status = status
			return nil
		}
	}
	return fmt.Errorf("audit record not found for entry: %s", ledgerEntryID)
}

func (r *memAuditRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.AuditRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.audits {
		if a.IdempotencyKey == key {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memAuditRepo) ListKeysWithoutLedgerEntry(ctx context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	byID := make(map[uuid.UUID]bool, len(r.s.entries))
	for _, e := range r.s.entries {
		byID[e.ID] = true
	}
	var keys []string
	for _, a := range r.s.audits {
		if !byID[a.LedgerEntryID] {
			keys = append(keys, a.IdempotencyKey)
		}
	}
	return keys, nil
}

// --- Webhook Event Repo ---

type memEventRepo struct {
	s *memStore
}

func copyEvent(e *domain.WebhookEvent) *domain.WebhookEvent {
	c := *e
	return &c
}

func (r *memEventRepo) Create(ctx context.Context, event *domain.WebhookEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.events[event.ID] = copyEvent(event)
	return nil
}

func (r *memEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil, nil
	}
	return copyEvent(e), nil
}

func (r *memEventRepo) GetAppliedByReference(ctx context.Context, provider, reference string) (*domain.WebhookEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.events {
		if e.Provider == provider && e.Reference == reference && e.State == domain.WebhookStateApplied {
			return copyEvent(e), nil
		}
	}
	return nil, nil
}

func (r *memEventRepo) UpdateState(ctx context.Context, id uuid.UUID, state domain.WebhookState, reason string, ledgerEntryID *uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return fmt.Errorf("webhook event not found: %s", id)
	}
	e.State = state
	e.RejectReason = reason
	if ledgerEntryID != nil {
		e.LedgerEntryID = ledgerEntryID
	}
	now := time.Now().UTC()
	e.ProcessedAt = &now
	return nil
}

func (r *memEventRepo) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return fmt.Errorf("webhook event not found: %s", id)
	}
	e.Attempts++
	return nil
}

func (r *memEventRepo) ListStuck(ctx context.Context, cutoff time.Time) ([]domain.WebhookEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.WebhookEvent
	for _, e := range r.s.events {
		nonTerminal := e.State == domain.WebhookStateReceived || e.State == domain.WebhookStateValidated
		if nonTerminal && e.ReceivedAt.Before(cutoff) {
			out = append(out, *e)
		}
	}
	return out, nil
}

// --- Fee Config Repo ---

type memFeeRepo struct {
	schedule *domain.FeeSchedule
}

func (r *memFeeRepo) GetActiveSchedule(ctx context.Context) (*domain.FeeSchedule, error) {
	if r.schedule == nil {
		return &domain.FeeSchedule{}, nil
	}
	return r.schedule, nil
}

// --- Fake Transfer Provider ---

type fakeProvider struct {
	name        string
	accountName string
	reference   string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) ListBanks(ctx context.Context) ([]ports.Bank, error) {
	return []ports.Bank{{Code: "058", Name: "Test Bank"}}, nil
}

func (p *fakeProvider) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (string, error) {
	return p.accountName, nil
}

func (p *fakeProvider) SubmitTransfer(ctx context.Context, transfer ports.ProviderTransfer) (*ports.ProviderTransferResult, error) {
	return &ports.ProviderTransferResult{
		Status:            ports.ProviderTransferSuccess,
		ProviderReference: p.reference,
	}, nil
}
