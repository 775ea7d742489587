package ledger

import (
	"context"

	"ledger_system/internal/db"
	"ledger_system/internal/domain"
)

// Page size limits for paginated history
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// HistoryPage is one page of an owner's transactions.
type HistoryPage struct {
	Transactions []domain.Transaction `json:"transactions"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
	Total        int64                `json:"total"`
	TotalPages   int                  `json:"total_pages"`
}

// History is the read-only view of an owner's transactions. It never writes.
type History struct {
	store    *db.Store
	accounts *Registry
	log      *Log
}

// NewHistory returns a history query over the given log.
func NewHistory(store *db.Store, accounts *Registry, log *Log) *History {
	return &History{store: store, accounts: accounts, log: log}
}

// All returns every transaction of the owner, newest first.
func (h *History) All(ctx context.Context, ownerID uint) ([]domain.Transaction, error) {
	read := h.store.DB(ctx)
	if _, err := h.accounts.GetByOwner(ctx, read, ownerID); err != nil {
		return nil, surface(err)
	}
	var out []domain.Transaction
	for rec, err := range h.log.ListByOwner(ctx, read, ownerID) {
		if err != nil {
			return nil, surface(err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Page returns one page of the owner's history. Out-of-range page and size
// values fall back to the first page and DefaultPageSize.
func (h *History) Page(ctx context.Context, ownerID uint, page, pageSize int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	read := h.store.DB(ctx)
	if _, err := h.accounts.GetByOwner(ctx, read, ownerID); err != nil {
		return nil, surface(err)
	}
	total, err := h.log.CountByOwner(ctx, read, ownerID)
	if err != nil {
		return nil, surface(err)
	}
	recs, err := h.log.PageByOwner(ctx, read, ownerID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, surface(err)
	}
	if recs == nil {
		recs = []domain.Transaction{}
	}
	return &HistoryPage{
		Transactions: recs,
		Page:         page,
		PageSize:     pageSize,
		Total:        total,
		TotalPages:   (int(total) + pageSize - 1) / pageSize,
	}, nil
}
