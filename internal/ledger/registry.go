package ledger

import (
	"context"
	"errors"
	"fmt"

	"ledger_system/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Balances are BIGINT minor units, so the guard and the write are integer arithmetic.
const (
	balanceAfterDelta = "balance + ?"
	balanceStaysValid = "id = ? AND " + balanceAfterDelta + " >= 0"
)

// Registry creates and looks up accounts and is the only code that writes balances.
// Every method takes the gorm handle to run on, so callers decide whether it is
// part of a larger unit of work.
type Registry struct{}

// NewRegistry returns an account registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Create opens the zero-balance account of ownerID.
func (r *Registry) Create(ctx context.Context, db *gorm.DB, ownerID uint) (*domain.Account, error) {
	var existing int64
	if err := db.WithContext(ctx).Model(&domain.Account{}).Where("owner_id = ?", ownerID).Count(&existing).Error; err != nil {
		return nil, storageError(err)
	}
	if existing > 0 {
		return nil, domain.ErrDuplicateAccount
	}
	account := &domain.Account{OwnerID: ownerID, Balance: decimal.Zero}
	if err := db.WithContext(ctx).Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrDuplicateAccount
		}
		return nil, storageError(err)
	}
	return account, nil
}

// Get loads an account by id.
func (r *Registry) Get(ctx context.Context, db *gorm.DB, accountID uint) (*domain.Account, error) {
	var account domain.Account
	if err := db.WithContext(ctx).First(&account, accountID).Error; err != nil {
		return nil, notFoundOr(err, domain.ErrAccountNotFound)
	}
	return &account, nil
}

// GetByOwner loads the account held by ownerID.
func (r *Registry) GetByOwner(ctx context.Context, db *gorm.DB, ownerID uint) (*domain.Account, error) {
	var account domain.Account
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&account).Error; err != nil {
		return nil, notFoundOr(err, domain.ErrAccountNotFound)
	}
	return &account, nil
}

// Adjust adds delta to the balance and returns the new balance. The check and the
// write are a single conditional UPDATE, so two concurrent debits can never both
// pass a stale balance check.
func (r *Registry) Adjust(ctx context.Context, db *gorm.DB, accountID uint, delta decimal.Decimal) (decimal.Decimal, error) {
	if delta.IsZero() {
		account, err := r.Get(ctx, db, accountID)
		if err != nil {
			return decimal.Zero, err
		}
		return account.Balance, nil
	}
	minor := domain.ToMinor(delta)
	res := db.WithContext(ctx).Model(&domain.Account{}).
		Where(balanceStaysValid, accountID, minor).
		Update("balance", gorm.Expr(balanceAfterDelta, minor))
	if res.Error != nil {
		return decimal.Zero, storageError(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, db, accountID); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, domain.ErrInsufficientFunds
	}
	account, err := r.Get(ctx, db, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func storageError(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStorage, err)
}

func notFoundOr(err, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return storageError(err)
}
