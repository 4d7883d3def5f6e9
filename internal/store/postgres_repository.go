/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the SQL for the three tables the settlement flow touches (users,
 * wallets, transactions) and the transactional debit-and-record unit of work
 * that keeps wallet mutation and transaction creation atomic.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Exact decimal NGN amounts (NUMERIC columns).
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nairagate/onramp-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the users, wallets and transactions tables if they do
// not exist yet. There are no further migrations beyond this initial schema.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			display_name TEXT NOT NULL,
			kyc_tier TEXT NOT NULL,
			risk_score DOUBLE PRECISION NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL UNIQUE REFERENCES users(id),
			balance NUMERIC(20,2) NOT NULL CHECK (balance >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			amount NUMERIC(20,2) NOT NULL,
			type TEXT NOT NULL,
			vasp_id TEXT NOT NULL,
			status TEXT NOT NULL,
			failure_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// CreateUserWithWallet provisions a user together with their fiat wallet in a
// single database transaction. Used by the internal seed/admin endpoint.
func (r *PostgresRepository) CreateUserWithWallet(ctx context.Context, user *domain.User, openingBalance decimal.Decimal) (*domain.Wallet, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO users (id, display_name, kyc_tier, risk_score, active, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.DisplayName, user.KYCTier, user.RiskScore, user.Active, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	wallet := &domain.Wallet{
		ID:        uuid.New(),
		UserID:    user.ID,
		Balance:   openingBalance,
		UpdatedAt: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO wallets (id, user_id, balance, updated_at) VALUES ($1, $2, $3, $4)`,
		wallet.ID, wallet.UserID, wallet.Balance, wallet.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit user provisioning: %w", err)
	}
	return wallet, nil
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, display_name, kyc_tier, risk_score, active, created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.DisplayName, &user.KYCTier, &user.RiskScore, &user.Active, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindWalletByUserID retrieves a user's fiat wallet.
func (r *PostgresRepository) FindWalletByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT id, user_id, balance, updated_at FROM wallets WHERE user_id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&wallet.ID, &wallet.UserID, &wallet.Balance, &wallet.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// DebitWallet decrements the wallet balance by exactly amount. The conditional
// UPDATE enforces sufficiency at the database so a losing racer cannot drive
// the balance negative.
func (r *PostgresRepository) DebitWallet(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	return debitWallet(ctx, r.db, userID, amount)
}

// execer covers both *pgxpool.Pool and pgx.Tx so the conditional debit and
// the transaction insert can run standalone or inside the unit of work.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// debitWallet runs the conditional debit against the given executor.
func debitWallet(ctx context.Context, db execer, userID uuid.UUID, amount decimal.Decimal) error {
	tag, err := db.Exec(ctx,
		`UPDATE wallets SET balance = balance - $1, updated_at = now() WHERE user_id = $2 AND balance >= $1`,
		amount, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing wallet from an underfunded one.
		var exists bool
		if scanErr := db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wallets WHERE user_id = $1)`, userID).Scan(&exists); scanErr != nil {
			return scanErr
		}
		if !exists {
			return ErrWalletNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

// DebitAndRecord debits the wallet and inserts the transaction record inside
// one database transaction: either both are persisted or neither is.
func (r *PostgresRepository) DebitAndRecord(ctx context.Context, txRecord *domain.Transaction) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := debitWallet(ctx, tx, txRecord.UserID, txRecord.Amount); err != nil {
		return err
	}
	if err := insertTransaction(ctx, tx, txRecord); err != nil {
		return fmt.Errorf("failed to insert transaction record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}
	return nil
}

// CreateTransaction persists a new transaction record outside of the
// settlement unit of work.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, txRecord *domain.Transaction) error {
	return insertTransaction(ctx, r.db, txRecord)
}

func insertTransaction(ctx context.Context, db execer, txRecord *domain.Transaction) error {
	if txRecord.CreatedAt.IsZero() {
		txRecord.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(ctx,
		`INSERT INTO transactions (id, user_id, amount, type, vasp_id, status, failure_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		txRecord.ID, txRecord.UserID, txRecord.Amount, txRecord.Type, txRecord.VASPID, txRecord.Status, txRecord.FailureReason, txRecord.CreatedAt,
	)
	return err
}

// FindTransactionByID retrieves a single transaction record.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	var txRecord domain.Transaction
	query := `SELECT id, user_id, amount, type, vasp_id, status, failure_reason, created_at FROM transactions WHERE id = $1`
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&txRecord.ID, &txRecord.UserID, &txRecord.Amount, &txRecord.Type, &txRecord.VASPID, &txRecord.Status, &txRecord.FailureReason, &txRecord.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txRecord, nil
}

// FindTransactionsByUserID returns a user's transactions, newest first.
func (r *PostgresRepository) FindTransactionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	query := `SELECT id, user_id, amount, type, vasp_id, status, failure_reason, created_at
	          FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var txRecord domain.Transaction
		if err := rows.Scan(
			&txRecord.ID, &txRecord.UserID, &txRecord.Amount, &txRecord.Type, &txRecord.VASPID, &txRecord.Status, &txRecord.FailureReason, &txRecord.CreatedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, txRecord)
	}
	return transactions, rows.Err()
}

// MarkTransactionAsFailed sets the terminal FAILED status with a reason.
func (r *PostgresRepository) MarkTransactionAsFailed(ctx context.Context, transactionID uuid.UUID, failureReason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = $1, failure_reason = $2 WHERE id = $3`,
		domain.TxStatusFailed, failureReason, transactionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// MarkTransactionAsCompleted sets the terminal COMPLETE status.
func (r *PostgresRepository) MarkTransactionAsCompleted(ctx context.Context, transactionID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = $1, failure_reason = NULL WHERE id = $2`,
		domain.TxStatusComplete, transactionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}
