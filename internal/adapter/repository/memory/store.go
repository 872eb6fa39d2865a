// Package memory is a concurrency-safe, in-process implementation of the
// ledger storage interfaces. It backs tests and the "memory" storage backend.
//
// Every wallet has a row lock. Writers hold it while changing a balance, and a
// transaction holds the locks of the wallets it touches until Commit or
// Rollback. Transactional adjustments are buffered and applied under the store
// mutex on Commit, so readers never observe half of a transfer.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iho/coinledger/internal/domain"
	"github.com/iho/coinledger/internal/usecase"
)

var errTxDone = errors.New("transaction already closed")

type walletRow struct {
	lock   chan struct{}
	wallet domain.Wallet
}

func (r *walletRow) acquire(ctx context.Context) error {
	select {
	case r.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *walletRow) release() {
	<-r.lock
}

// Store implements the wallet, transaction log, leaderboard and directory
// repositories plus a transaction manager.
type Store struct {
	mu        sync.RWMutex
	wallets   map[int64]*walletRow
	nextID    int64
	defaults  map[int64]int64
	records   []*domain.Transaction
	recordIDs map[string]struct{}
	now       func() time.Time
}

var (
	_ usecase.WalletRepository      = (*Store)(nil)
	_ usecase.WalletLocker          = (*Store)(nil)
	_ usecase.TransactionManager    = (*Store)(nil)
	_ usecase.TransactionLog        = (*Store)(nil)
	_ usecase.LeaderboardRepository = (*Store)(nil)
	_ usecase.Directory             = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{
		wallets:   make(map[int64]*walletRow),
		defaults:  make(map[int64]int64),
		recordIDs: make(map[string]struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new wallet and assigns its id.
func (s *Store) Create(_ context.Context, wallet *domain.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertLocked(wallet)

	return nil
}

func (s *Store) insertLocked(wallet *domain.Wallet) {
	s.nextID++
	wallet.ID = s.nextID

	s.wallets[wallet.ID] = &walletRow{
		lock:   make(chan struct{}, 1),
		wallet: *wallet,
	}
}

// GetByID returns a copy of the committed wallet.
func (s *Store) GetByID(_ context.Context, id int64) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.wallets[id]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}

	w := row.wallet
	return &w, nil
}

// ListByOwner returns the owner's wallets ordered by id.
func (s *Store) ListByOwner(_ context.Context, ownerID int64) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallets := make([]*domain.Wallet, 0)
	for _, row := range s.wallets {
		if row.wallet.OwnerID == ownerID {
			w := row.wallet
			wallets = append(wallets, &w)
		}
	}

	sort.Slice(wallets, func(i, j int) bool { return wallets[i].ID < wallets[j].ID })

	return wallets, nil
}

func (s *Store) row(id int64) (*walletRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.wallets[id]
	return row, ok
}

// LockForUpdate acquires the row locks of the given wallets in the order given.
func (s *Store) LockForUpdate(ctx context.Context, tx usecase.Transaction, ids []int64) ([]*domain.Wallet, error) {
	mtx, err := asTx(tx)
	if err != nil {
		return nil, err
	}

	wallets := make([]*domain.Wallet, 0, len(ids))
	for _, id := range ids {
		row, ok := s.row(id)
		if !ok {
			continue
		}

		if err := mtx.lock(ctx, id, row); err != nil {
			return nil, err
		}

		w, _ := s.GetByID(ctx, id)
		wallets = append(wallets, w)
	}

	return wallets, nil
}

// ConditionalAdjust applies delta if the balance stays non-negative.
func (s *Store) ConditionalAdjust(ctx context.Context, tx usecase.Transaction, id int64, delta int64) (int64, error) {
	row, ok := s.row(id)
	if !ok {
		return 0, domain.ErrWalletNotFound
	}

	if tx != nil {
		mtx, err := asTx(tx)
		if err != nil {
			return 0, err
		}
		return mtx.adjust(ctx, id, row, delta)
	}

	if err := row.acquire(ctx); err != nil {
		return 0, err
	}
	defer row.release()

	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := row.wallet.ApplyDelta(delta)
	if !ok {
		return row.wallet.Balance, domain.ErrInsufficientFunds
	}

	row.wallet.Balance = next
	row.wallet.UpdatedAt = s.now()

	return next, nil
}

// Begin starts a transaction.
func (s *Store) Begin(_ context.Context) (usecase.Transaction, error) {
	return &Tx{
		store:   s,
		held:    make(map[int64]*walletRow),
		pending: make(map[int64]int64),
	}, nil
}

// Tx buffers balance changes while holding row locks.
type Tx struct {
	store   *Store
	held    map[int64]*walletRow
	pending map[int64]int64
	done    bool
}

func asTx(tx usecase.Transaction) (*Tx, error) {
	mtx, ok := tx.(*Tx)
	if !ok {
		return nil, errors.New("memory: foreign transaction")
	}
	if mtx.done {
		return nil, errTxDone
	}
	return mtx, nil
}

func (t *Tx) lock(ctx context.Context, id int64, row *walletRow) error {
	if _, ok := t.held[id]; ok {
		return nil
	}

	if err := row.acquire(ctx); err != nil {
		return err
	}

	t.held[id] = row
	return nil
}

func (t *Tx) adjust(ctx context.Context, id int64, row *walletRow, delta int64) (int64, error) {
	if err := t.lock(ctx, id, row); err != nil {
		return 0, err
	}

	t.store.mu.RLock()
	current := row.wallet
	t.store.mu.RUnlock()

	current.Balance += t.pending[id]

	next, ok := current.ApplyDelta(delta)
	if !ok {
		return current.Balance, domain.ErrInsufficientFunds
	}

	t.pending[id] += delta

	return next, nil
}

// Commit applies buffered changes atomically and releases row locks.
func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return errTxDone
	}

	s := t.store
	now := s.now()

	s.mu.Lock()
	for id, delta := range t.pending {
		row := t.held[id]
		row.wallet.Balance += delta
		row.wallet.UpdatedAt = now
	}
	s.mu.Unlock()

	t.finish()

	return nil
}

// Rollback discards buffered changes. It is a no-op after Commit.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}

	t.finish()

	return nil
}

func (t *Tx) finish() {
	t.done = true
	for id, row := range t.held {
		row.release()
		delete(t.held, id)
	}
}

// Append adds a record to the transaction log. Duplicate ids are ignored.
func (s *Store) Append(_ context.Context, record *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recordIDs[record.ID]; ok {
		return nil
	}

	r := *record
	s.records = append(s.records, &r)
	s.recordIDs[record.ID] = struct{}{}

	return nil
}

// Query returns log records matching the filter in insertion order.
func (s *Store) Query(_ context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Transaction, 0)
	skipped := 0
	for _, r := range s.records {
		if !filter.Matches(r) {
			continue
		}

		if skipped < filter.Offset {
			skipped++
			continue
		}

		if filter.Limit > 0 && len(matched) >= filter.Limit {
			break
		}

		rec := *r
		matched = append(matched, &rec)
	}

	return matched, nil
}

// TopOwners ranks owners over the committed balances.
func (s *Store) TopOwners(_ context.Context, n int) ([]domain.OwnerTotal, error) {
	s.mu.RLock()
	wallets := make([]*domain.Wallet, 0, len(s.wallets))
	for _, row := range s.wallets {
		w := row.wallet
		wallets = append(wallets, &w)
	}
	s.mu.RUnlock()

	return domain.RankOwners(wallets, n), nil
}

// DefaultWallet returns the owner's default wallet id.
func (s *Store) DefaultWallet(_ context.Context, ownerID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.defaults[ownerID]
	if !ok {
		return 0, domain.ErrDefaultWalletNotSet
	}

	return id, nil
}

// SetDefaultWallet records the owner's default wallet.
func (s *Store) SetDefaultWallet(_ context.Context, ownerID, walletID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return domain.ErrWalletNotFound
	}

	s.defaults[ownerID] = walletID

	return nil
}

// ProvisionDefaultWallet stores wallet as the owner's default unless the
// owner already has one, in which case nothing is created.
func (s *Store) ProvisionDefaultWallet(_ context.Context, wallet *domain.Wallet) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.defaults[wallet.OwnerID]; ok {
		return id, false, nil
	}

	s.insertLocked(wallet)
	s.defaults[wallet.OwnerID] = wallet.ID

	return wallet.ID, true, nil
}
