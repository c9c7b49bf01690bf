package service

import (
	"context"
	"errors"

	"github.com/chatledger/chatledger-go/internal/model"
	"github.com/chatledger/chatledger-go/internal/repository"
)

var ErrAmountNotPositive = errors.New("amount must be positive")

// LedgerStore is the persistence capability the ledger service depends on.
type LedgerStore interface {
	Balance(ctx context.Context, userID int64) (float64, error)
	AddTransaction(ctx context.Context, userID int64, amount float64, transactionType string) error
	ListTransactions(ctx context.Context, userID int64) ([]model.Transaction, error)
}

// LedgerService handles balance top-ups and history reads.
type LedgerService struct {
	ledger LedgerStore
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(ledger LedgerStore) *LedgerService {
	return &LedgerService{ledger: ledger}
}

// Pay records an income transaction. Non-positive amounts are rejected so
// a negative "income" can never deflate the balance.
func (s *LedgerService) Pay(ctx context.Context, userID int64, amount float64) error {
	if amount <= 0 {
		return ErrAmountNotPositive
	}

	err := s.ledger.AddTransaction(ctx, userID, amount, model.TransactionIncome)
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}

// Balance returns the user's derived balance.
func (s *LedgerService) Balance(ctx context.Context, userID int64) (float64, error) {
	return s.ledger.Balance(ctx, userID)
}

// Transactions returns the user's full transaction history.
func (s *LedgerService) Transactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.ledger.ListTransactions(ctx, userID)
}
