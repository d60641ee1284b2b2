package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds a balance. Its AccountNumber is the human-facing identifier.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	AccountNumber string          `json:"account_number"`
	Name          string          `json:"name"`
	Balance       decimal.Decimal `json:"balance"`
	Status        AccountStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Transaction is the record of a transfer between two accounts.
// Accounts are referenced by id only.
type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	SenderAccountID   uuid.UUID         `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID         `json:"receiver_account_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Status            TransactionStatus `json:"status"`
	Message           string            `json:"message"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Involves reports whether the account is the sender or the receiver.
func (t Transaction) Involves(accountID uuid.UUID) bool {
	return t.SenderAccountID == accountID || t.ReceiverAccountID == accountID
}

// DailySummary aggregates the transactions one sender made on a given day.
type DailySummary struct {
	AccountID        uuid.UUID       `json:"account_id"`
	Date             time.Time       `json:"date"`
	TransactionCount int64           `json:"transaction_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

// IdempotencyRecord binds a client supplied key to the transfer it produced.
type IdempotencyRecord struct {
	Key           string    `json:"key"`
	RequestHash   string    `json:"request_hash"`
	TransactionID uuid.UUID `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
}
