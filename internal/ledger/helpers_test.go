package ledger

import (
	"context"
	"sync"
	"testing"

	"ledger_system/internal/db"
	"ledger_system/internal/db/dbtest"
	"ledger_system/internal/domain"
	"ledger_system/internal/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TransactionCompleted
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.TransactionCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	store     *db.Store
	accounts  *Registry
	log       *Log
	engine    *Engine
	history   *History
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := db.NewStore(dbtest.Open(t), 3)
	accounts := NewRegistry()
	log := NewLog(3) // small batches so history paging is exercised
	pub := &recordingPublisher{}
	return &fixture{
		store:     store,
		accounts:  accounts,
		log:       log,
		engine:    NewEngine(store, accounts, log, nil, pub),
		history:   NewHistory(store, accounts, log),
		publisher: pub,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// owner registers a user with an empty account and returns the user id.
func (f *fixture) owner(t *testing.T, name string) uint {
	t.Helper()
	ctx := context.Background()
	user := &domain.User{Username: name, Password: "x", Role: domain.RoleUser}
	require.NoError(t, f.store.DB(ctx).Create(user).Error)
	_, err := f.accounts.Create(ctx, f.store.DB(ctx), user.ID)
	require.NoError(t, err)
	return user.ID
}

// fundedOwner registers a user and deposits amount.
func (f *fixture) fundedOwner(t *testing.T, name, amount string) uint {
	t.Helper()
	id := f.owner(t, name)
	_, err := f.engine.Deposit(context.Background(), id, dec(amount))
	require.NoError(t, err)
	return id
}

func (f *fixture) balance(t *testing.T, ownerID uint) decimal.Decimal {
	t.Helper()
	account, err := f.accounts.GetByOwner(context.Background(), f.store.DB(context.Background()), ownerID)
	require.NoError(t, err)
	return account.Balance
}

func (f *fixture) countTransactions(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.store.DB(context.Background()).Model(&domain.Transaction{}).Count(&n).Error)
	return n
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}
