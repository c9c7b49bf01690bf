package model

import "time"

// Transaction types recorded in the ledger.
const (
	TransactionIncome  = "income"
	TransactionExpense = "expense"
)

// User represents a user account in the database.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Transaction represents one immutable ledger entry. Rows are append-only;
// the balance is always derived by summing them, never stored.
type Transaction struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	Amount          float64   `json:"amount"`
	TransactionType string    `json:"transaction_type"`
	CreatedAt       time.Time `json:"created_at"`
}

// CredentialsRequest represents a registration or login request.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPairResponse carries the access and refresh tokens minted on login.
type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AccessTokenResponse carries a freshly minted access token.
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// PayRequest represents a balance top-up request.
type PayRequest struct {
	Amount float64 `json:"amount"`
}

// BalanceResponse represents the current derived balance.
type BalanceResponse struct {
	Balance float64 `json:"balance"`
}

// UserResponse represents user data safe for API responses.
type UserResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
