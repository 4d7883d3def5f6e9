/**
 * @description
 * This file defines the `Repository` interface, the contract for all data access
 * operations required by the onramp-service. Defining an interface decouples the
 * settlement logic from the concrete persistence layer (PostgreSQL in production,
 * an in-memory store for tests and local runs).
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For entity identifiers.
 * - github.com/shopspring/decimal: Exact decimal NGN amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nairagate/onramp-service/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Repository defines the set of methods for interacting with persistent state.
type Repository interface {
	// User and wallet methods
	CreateUserWithWallet(ctx context.Context, user *domain.User, openingBalance decimal.Decimal) (*domain.Wallet, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	FindWalletByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)

	// DebitWallet decrements the wallet balance by exactly amount. It returns
	// ErrInsufficientFunds and leaves the wallet untouched when the balance
	// does not cover the amount.
	DebitWallet(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error

	// DebitAndRecord performs the wallet debit and the creation of the
	// transaction record as one atomic unit: either both are persisted or
	// neither is. The passed transaction is persisted as-is.
	DebitAndRecord(ctx context.Context, tx *domain.Transaction) error

	// Transaction methods
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)
	MarkTransactionAsFailed(ctx context.Context, transactionID uuid.UUID, failureReason string) error
	MarkTransactionAsCompleted(ctx context.Context, transactionID uuid.UUID) error
}
