package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"time"

	"ledger_system/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultBatchSize = 100

// newestFirst orders records by creation. IDs are UUIDv7 and CreatedAt is taken
// from the ID, so both columns agree and the id breaks ties inside a millisecond.
const newestFirst = "created_at DESC, id DESC"

// Log is the append-only transaction log.
type Log struct {
	batchSize int
}

// NewLog returns a transaction log that pages through history batchSize rows at a time.
func NewLog(batchSize int) *Log {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Log{batchSize: batchSize}
}

// newTransactionID returns a fresh UUIDv7 and the instant embedded in it.
func newTransactionID() (string, time.Time, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, err
	}
	return id.String(), v7Time(id), nil
}

// v7Time reads the 48-bit millisecond timestamp at the front of a UUIDv7.
func v7Time(id uuid.UUID) time.Time {
	ms := int64(binary.BigEndian.Uint64(id[:8]) >> 16)
	return time.UnixMilli(ms).UTC()
}

// Append validates rec, fills in its id and timestamp when unset, and persists it.
// A second reverse of the same transaction is rejected by the (reference_id, type)
// unique index and reported as ErrAlreadyReversed.
func (l *Log) Append(ctx context.Context, db *gorm.DB, rec *domain.Transaction) (*domain.Transaction, error) {
	if !domain.ValidAmount(rec.Amount) {
		return nil, domain.ErrInvalidAmount
	}
	if !rec.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", domain.ErrStorage, rec.Type)
	}
	if rec.ID == "" {
		id, at, err := newTransactionID()
		if err != nil {
			return nil, storageError(err)
		}
		rec.ID = id
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = at
		}
	}
	if rec.CreatedAt.IsZero() {
		if id, err := uuid.Parse(rec.ID); err == nil && id.Version() == 7 {
			rec.CreatedAt = v7Time(id)
		} else {
			rec.CreatedAt = time.Now().UTC()
		}
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) && rec.Type == domain.TypeReverse {
			return nil, domain.ErrAlreadyReversed
		}
		return nil, storageError(err)
	}
	return rec, nil
}

// Find loads a transaction by id.
func (l *Log) Find(ctx context.Context, db *gorm.DB, id string) (*domain.Transaction, error) {
	var rec domain.Transaction
	if err := db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, notFoundOr(err, domain.ErrTransactionNotFound)
	}
	return &rec, nil
}

// FindReverseOf returns the reverse referencing originalID, or nil when there is none.
func (l *Log) FindReverseOf(ctx context.Context, db *gorm.DB, originalID string) (*domain.Transaction, error) {
	var recs []domain.Transaction
	err := db.WithContext(ctx).
		Where("reference_id = ? AND type = ?", originalID, domain.TypeReverse).
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return nil, storageError(err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// Counterpart follows a transfer_out to its transfer_in and checks that the two
// records point at each other.
func (l *Log) Counterpart(ctx context.Context, db *gorm.DB, out *domain.Transaction) (*domain.Transaction, error) {
	if out.Type != domain.TypeTransferOut || out.ReferenceID == nil {
		return nil, fmt.Errorf("%w: %s is not a linked transfer_out", domain.ErrStorage, out.ID)
	}
	in, err := l.Find(ctx, db, *out.ReferenceID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return nil, fmt.Errorf("%w: transfer_in %s of %s is missing", domain.ErrStorage, *out.ReferenceID, out.ID)
		}
		return nil, err
	}
	if in.Type != domain.TypeTransferIn || in.ReferenceID == nil || *in.ReferenceID != out.ID {
		return nil, fmt.Errorf("%w: %s and %s are not a transfer pair", domain.ErrStorage, out.ID, in.ID)
	}
	return in, nil
}

// ListByOwner yields the owner's transactions newest first. Rows are fetched lazily
// in batches using the id as a keyset cursor; every call starts a fresh query and
// stopping early leaves nothing open.
func (l *Log) ListByOwner(ctx context.Context, db *gorm.DB, ownerID uint) iter.Seq2[domain.Transaction, error] {
	return func(yield func(domain.Transaction, error) bool) {
		cursor := ""
		for {
			q := db.WithContext(ctx).Where("owner_id = ?", ownerID)
			if cursor != "" {
				q = q.Where("id < ?", cursor)
			}
			var batch []domain.Transaction
			if err := q.Order(newestFirst).Limit(l.batchSize).Find(&batch).Error; err != nil {
				yield(domain.Transaction{}, storageError(err))
				return
			}
			for _, rec := range batch {
				if !yield(rec, nil) {
					return
				}
			}
			if len(batch) < l.batchSize {
				return
			}
			cursor = batch[len(batch)-1].ID
		}
	}
}

// CountByOwner counts the owner's transactions.
func (l *Log) CountByOwner(ctx context.Context, db *gorm.DB, ownerID uint) (int64, error) {
	var total int64
	if err := db.WithContext(ctx).Model(&domain.Transaction{}).Where("owner_id = ?", ownerID).Count(&total).Error; err != nil {
		return 0, storageError(err)
	}
	return total, nil
}

// PageByOwner returns one offset page of the owner's transactions, newest first.
func (l *Log) PageByOwner(ctx context.Context, db *gorm.DB, ownerID uint, offset, limit int) ([]domain.Transaction, error) {
	var recs []domain.Transaction
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order(newestFirst).
		Offset(offset).
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, storageError(err)
	}
	return recs, nil
}

// Filter narrows an admin listing. Zero fields are ignored.
type Filter struct {
	OwnerID uint
	Type    domain.TransactionType
	From    time.Time
	To      time.Time
	Offset  int
	Limit   int
}

// List returns one page of transactions across all owners plus the total matching count.
func (l *Log) List(ctx context.Context, db *gorm.DB, f Filter) ([]domain.Transaction, int64, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	matching := func(q *gorm.DB) *gorm.DB {
		if f.OwnerID != 0 {
			q = q.Where("owner_id = ?", f.OwnerID)
		}
		if f.Type != "" {
			q = q.Where("type = ?", f.Type)
		}
		if !f.From.IsZero() {
			q = q.Where("created_at >= ?", f.From)
		}
		if !f.To.IsZero() {
			q = q.Where("created_at <= ?", f.To)
		}
		return q
	}
	var total int64
	if err := db.WithContext(ctx).Model(&domain.Transaction{}).Scopes(matching).Count(&total).Error; err != nil {
		return nil, 0, storageError(err)
	}
	var recs []domain.Transaction
	err := db.WithContext(ctx).Scopes(matching).Order(newestFirst).Offset(f.Offset).Limit(f.Limit).Find(&recs).Error
	if err != nil {
		return nil, 0, storageError(err)
	}
	return recs, total, nil
}
