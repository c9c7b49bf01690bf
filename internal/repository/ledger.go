package repository

import (
	"context"
	"database/sql"

	"github.com/chatledger/chatledger-go/internal/model"
)

// LedgerRepository handles the append-only transaction log. Rows are never
// updated or deleted; the balance is always derived by aggregation.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Balance returns the derived balance: sum of income minus sum of expense.
// A user with no transactions has a balance of zero.
func (r *LedgerRepository) Balance(ctx context.Context, userID int64) (float64, error) {
	income, err := r.sumByType(ctx, userID, model.TransactionIncome)
	if err != nil {
		return 0, err
	}

	expense, err := r.sumByType(ctx, userID, model.TransactionExpense)
	if err != nil {
		return 0, err
	}

	return income - expense, nil
}

func (r *LedgerRepository) sumByType(ctx context.Context, userID int64, transactionType string) (float64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE user_id = ? AND transaction_type = ?`

	var sum float64
	if err := r.db.QueryRowContext(ctx, query, userID, transactionType).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

// AddTransaction appends one immutable transaction row. The amount is
// accepted as given for the type; callers own the sign convention.
func (r *LedgerRepository) AddTransaction(ctx context.Context, userID int64, amount float64, transactionType string) error {
	query := `INSERT INTO transactions (user_id, amount, transaction_type) VALUES (?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, userID, amount, transactionType)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// ListTransactions returns a user's full transaction history in insertion order.
func (r *LedgerRepository) ListTransactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	query := `SELECT id, user_id, amount, transaction_type, created_at
		FROM transactions WHERE user_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.TransactionType, &t.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}

	return transactions, rows.Err()
}
