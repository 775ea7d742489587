package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account Model. Balance only changes through the ledger registry.
type Account struct {
	ID        uint            `gorm:"primaryKey" json:"id"`                                           // Primary key
	OwnerID   uint            `gorm:"uniqueIndex;not null" json:"owner_id"`                           // Foreign key to User
	Balance   decimal.Decimal `gorm:"type:bigint;serializer:minor;not null;default:0" json:"balance"` // Account balance, stored in minor units
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
