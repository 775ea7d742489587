package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType tells how a record moved money on its account
type TransactionType string

const (
	TypeDeposit     TransactionType = "deposit"      // Credit from outside the ledger
	TypeTransferOut TransactionType = "transfer_out" // Debit side of a transfer pair
	TypeTransferIn  TransactionType = "transfer_in"  // Credit side of a transfer pair
	TypeReverse     TransactionType = "reverse"      // Undo of a transfer_out
)

// Valid reports whether t is one of the known transaction types
func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeTransferOut, TypeTransferIn, TypeReverse:
		return true
	}
	return false
}

// Transaction Model. Records are append-only facts; nothing updates or deletes them.
//
// ReferenceID links a transfer_out to its transfer_in (and back), and a reverse to the
// transfer_out it undoes. The (reference_id, type) pair is unique, so a transaction can be
// referenced by at most one reverse.
type Transaction struct {
	ID                    string          `gorm:"primaryKey;size:36" json:"id"`                                         // UUIDv7
	AccountID             uint            `gorm:"index;not null" json:"account_id"`                                     // Account whose balance this record explains
	OwnerID               uint            `gorm:"index:idx_tx_owner_created,priority:1;not null" json:"owner_id"`       // Owner of that account
	Type                  TransactionType `gorm:"size:16;not null;uniqueIndex:idx_tx_reference,priority:2" json:"type"` // Transaction type
	Amount                decimal.Decimal `gorm:"type:bigint;serializer:minor;not null" json:"amount"`                  // Always positive
	CounterpartyAccountID *uint           `json:"counterparty_account_id,omitempty"`                                    // Other side of a transfer or reverse
	ReferenceID           *string         `gorm:"size:36;uniqueIndex:idx_tx_reference,priority:1" json:"reference_id,omitempty"`
	CreatedAt             time.Time       `gorm:"index:idx_tx_owner_created,priority:2" json:"created_at"`
}
