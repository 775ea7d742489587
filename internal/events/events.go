// Package events announces committed ledger transactions to other services.
package events

import (
	"context"
	"time"

	"ledger_system/internal/domain"

	"github.com/shopspring/decimal"
)

// TransactionCompleted is emitted once per committed transaction record.
type TransactionCompleted struct {
	TransactionID string                 `json:"transaction_id"`
	Type          domain.TransactionType `json:"type"`
	AccountID     uint                   `json:"account_id"`
	OwnerID       uint                   `json:"owner_id"`
	Amount        decimal.Decimal        `json:"amount"`
	ReferenceID   *string                `json:"reference_id,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// FromTransaction builds the event for a committed record.
func FromTransaction(tx *domain.Transaction) TransactionCompleted {
	return TransactionCompleted{
		TransactionID: tx.ID,
		Type:          tx.Type,
		AccountID:     tx.AccountID,
		OwnerID:       tx.OwnerID,
		Amount:        tx.Amount,
		ReferenceID:   tx.ReferenceID,
		CreatedAt:     tx.CreatedAt,
	}
}

// Publisher delivers events after their transactions have committed.
type Publisher interface {
	Publish(ctx context.Context, events ...TransactionCompleted) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...TransactionCompleted) error { return nil }
func (NopPublisher) Close() error                                           { return nil }
