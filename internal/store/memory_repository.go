/**
 * @description
 * This file provides an in-memory implementation of the `Repository` interface.
 * It backs unit tests and local `STORE_DRIVER=memory` runs, and is safe for
 * concurrent use. Snapshots are copied on the way out so callers can never
 * mutate internal state.
 *
 * @dependencies
 * - context, sync, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal: Identifiers and amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nairagate/onramp-service/internal/domain"
)

// MemoryRepository is a thread-safe in-memory implementation of Repository.
type MemoryRepository struct {
	mu           sync.Mutex
	users        map[uuid.UUID]domain.User
	wallets      map[uuid.UUID]domain.Wallet // keyed by user id
	transactions map[uuid.UUID]domain.Transaction
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:        make(map[uuid.UUID]domain.User),
		wallets:      make(map[uuid.UUID]domain.Wallet),
		transactions: make(map[uuid.UUID]domain.Transaction),
	}
}

// CreateUserWithWallet provisions a user and their wallet together.
func (m *MemoryRepository) CreateUserWithWallet(ctx context.Context, user *domain.User, openingBalance decimal.Decimal) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	m.users[user.ID] = *user

	wallet := domain.Wallet{
		ID:        uuid.New(),
		UserID:    user.ID,
		Balance:   openingBalance,
		UpdatedAt: time.Now().UTC(),
	}
	m.wallets[user.ID] = wallet

	out := wallet
	return &out, nil
}

// FindUserByID returns a copy of the stored user.
func (m *MemoryRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := user
	return &out, nil
}

// FindWalletByUserID returns a copy of the stored wallet.
func (m *MemoryRepository) FindWalletByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallet, ok := m.wallets[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	out := wallet
	return &out, nil
}

// DebitWallet decrements the balance by exactly amount, enforcing sufficiency.
func (m *MemoryRepository) DebitWallet(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debitLocked(userID, amount)
}

func (m *MemoryRepository) debitLocked(userID uuid.UUID, amount decimal.Decimal) error {
	wallet, ok := m.wallets[userID]
	if !ok {
		return ErrWalletNotFound
	}
	if wallet.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	wallet.Balance = wallet.Balance.Sub(amount)
	wallet.UpdatedAt = time.Now().UTC()
	m.wallets[userID] = wallet
	return nil
}

// DebitAndRecord applies the debit and stores the transaction under one lock
// hold, mirroring the atomic unit of work of the PostgreSQL implementation.
func (m *MemoryRepository) DebitAndRecord(ctx context.Context, txRecord *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.debitLocked(txRecord.UserID, txRecord.Amount); err != nil {
		return err
	}
	if txRecord.CreatedAt.IsZero() {
		txRecord.CreatedAt = time.Now().UTC()
	}
	m.transactions[txRecord.ID] = *txRecord
	return nil
}

// CreateTransaction stores a transaction record without touching wallets.
func (m *MemoryRepository) CreateTransaction(ctx context.Context, txRecord *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if txRecord.CreatedAt.IsZero() {
		txRecord.CreatedAt = time.Now().UTC()
	}
	m.transactions[txRecord.ID] = *txRecord
	return nil
}

// FindTransactionByID returns a copy of the stored transaction.
func (m *MemoryRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txRecord, ok := m.transactions[transactionID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	out := txRecord
	return &out, nil
}

// FindTransactionsByUserID returns the user's transactions, newest first.
func (m *MemoryRepository) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []domain.Transaction
	for _, txRecord := range m.transactions {
		if txRecord.UserID == userID {
			result = append(result, txRecord)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// MarkTransactionAsFailed sets the terminal FAILED status with a reason.
func (m *MemoryRepository) MarkTransactionAsFailed(ctx context.Context, transactionID uuid.UUID, failureReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txRecord, ok := m.transactions[transactionID]
	if !ok {
		return ErrTransactionNotFound
	}
	txRecord.Status = domain.TxStatusFailed
	txRecord.FailureReason = &failureReason
	m.transactions[transactionID] = txRecord
	return nil
}

// MarkTransactionAsCompleted sets the terminal COMPLETE status.
func (m *MemoryRepository) MarkTransactionAsCompleted(ctx context.Context, transactionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txRecord, ok := m.transactions[transactionID]
	if !ok {
		return ErrTransactionNotFound
	}
	txRecord.Status = domain.TxStatusComplete
	txRecord.FailureReason = nil
	m.transactions[transactionID] = txRecord
	return nil
}
