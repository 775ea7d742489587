package ledger

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"ledger_system/internal/domain"
	"ledger_system/internal/lock"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositIncreasesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.owner(t, "alice")

	res, err := f.engine.Deposit(ctx, alice, dec("100.25"))
	require.NoError(t, err)
	requireDecimal(t, "100.25", res.Balance)
	requireDecimal(t, "100.25", f.balance(t, alice))

	rec, err := f.log.Find(ctx, f.store.DB(ctx), res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TypeDeposit, rec.Type)
	assert.Equal(t, alice, rec.OwnerID)
	requireDecimal(t, "100.25", rec.Amount)
	assert.Nil(t, rec.ReferenceID)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, res.Transaction.ID, f.publisher.events[0].TransactionID)
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.owner(t, "alice")

	for _, amount := range []string{"0", "-5", "1.999"} {
		_, err := f.engine.Deposit(ctx, alice, dec(amount))
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, amount)
	}
	_, err := f.engine.Deposit(ctx, 4242, dec("1"))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	assert.Zero(t, f.countTransactions(t))
	assert.Empty(t, f.publisher.events)
}

func TestTransferMovesFundsAndLinksPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.fundedOwner(t, "alice", "100")
	bob := f.owner(t, "bob")

	res, err := f.engine.Transfer(ctx, alice, bob, dec("30.50"))
	require.NoError(t, err)
	requireDecimal(t, "69.50", res.SenderBalance)
	requireDecimal(t, "30.50", res.RecipientBalance)
	requireDecimal(t, "69.50", f.balance(t, alice))
	requireDecimal(t, "30.50", f.balance(t, bob))

	out, in := res.Transactions.Out, res.Transactions.In
	assert.Equal(t, domain.TypeTransferOut, out.Type)
	assert.Equal(t, domain.TypeTransferIn, in.Type)
	assert.Equal(t, alice, out.OwnerID)
	assert.Equal(t, bob, in.OwnerID)
	require.NotNil(t, out.ReferenceID)
	require.NotNil(t, in.ReferenceID)
	assert.Equal(t, in.ID, *out.ReferenceID)
	assert.Equal(t, out.ID, *in.ReferenceID)
	require.NotNil(t, out.CounterpartyAccountID)
	assert.Equal(t, in.AccountID, *out.CounterpartyAccountID)

	paired, err := f.log.Counterpart(ctx, f.store.DB(ctx), out)
	require.NoError(t, err)
	assert.Equal(t, in.ID, paired.ID)

	assert.EqualValues(t, 3, f.countTransactions(t)) // deposit + pair
	assert.Len(t, f.publisher.events, 3)
}

func TestTransferInsufficientFundsChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.fundedOwner(t, "alice", "10")
	bob := f.owner(t, "bob")

	_, err := f.engine.Transfer(ctx, alice, bob, dec("10.01"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	requireDecimal(t, "10", f.balance(t, alice))
	requireDecimal(t, "0", f.balance(t, bob))
	assert.EqualValues(t, 1, f.countTransactions(t))
}

func TestTransferValidationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.fundedOwner(t, "alice", "10")

	_, err := f.engine.Transfer(ctx, alice, alice, dec("0"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.engine.Transfer(ctx, alice, alice, dec("1"))
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)

	_, err = f.engine.Transfer(ctx, 999, 998, dec("1"))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = f.engine.Transfer(ctx, alice, 998, dec("1"))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	requireDecimal(t, "10", f.balance(t, alice))
}

func TestReverseTransferRestoresBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.fundedOwner(t, "alice", "100")
	bob := f.owner(t, "bob")
	tr, err := f.engine.Transfer(ctx, alice, bob, dec("40"))
	require.NoError(t, err)

	res, err := f.engine.Reverse(ctx, alice, tr.Transactions.Out.ID)
	require.NoError(t, err)
	requireDecimal(t, "100", res.Balance)
	assert.Equal(t, bob, res.RecipientOwnerID)
	requireDecimal(t, "100", f.balance(t, alice))
	requireDecimal(t, "0", f.balance(t, bob))

	rev := res.ReverseTransaction
	assert.Equal(t, domain.TypeReverse, rev.Type)
	assert.Equal(t, tr.Transactions.Out.AccountID, rev.AccountID)
	assert.Equal(t, alice, rev.OwnerID)
	requireDecimal(t, "40", rev.Amount)
	require.NotNil(t, rev.ReferenceID)
	assert.Equal(t, tr.Transactions.Out.ID, *rev.ReferenceID)

	found, err := f.log.FindReverseOf(ctx, f.store.DB(ctx), tr.Transactions.Out.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rev.ID, found.ID)
	assert.EqualValues(t, 4, f.countTransactions(t))
}

func TestReverseTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.fundedOwner(t, "alice", "100")
	bob := f.fundedOwner(t, "bob", "100")
	tr, err := f.engine.Transfer(ctx, alice, bob, dec("25"))
	require.NoError(t, err)
	_, err = f.engine.Reverse(ctx, alice, tr.Transactions.Out.ID)
	require.NoError(t, err)

	_, err = f.engine.Reverse(ctx, alice, tr.Transactions.Out.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyReversed)
	requireDecimal(t, "100", f.balance(t, alice))
	requireDecimal(t, "100", f.balance(t, bob))
	assert.EqualValues(t, 5, f.countTransactions(t))
}

func TestReverseDepositIsUnreversible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.owner(t, "alice")
	dep, err := f.engine.Deposit(ctx, alice, dec("10"))
	require.NoError(t, err)

	_, err = f.engine.Reverse(ctx, alice, dep.Transaction.ID)
	require.ErrorIs(t, err, domain.ErrUnreversible)
	requireDecimal(t, "10", f.balance(t, alice))
	assert.EqualValues(t, 1, f.countTransactions(t))
}

func TestReverseAccessAndTypeChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.fundedOwner(t, "alice", "100")
	bob := f.owner(t, "bob")
	tr, err := f.engine.Transfer(ctx, alice, bob, dec("10"))
	require.NoError(t, err)

	_, err = f.engine.Reverse(ctx, alice, "0191e3a0-0000-7000-8000-000000000000")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = f.engine.Reverse(ctx, bob, tr.Transactions.Out.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// the recipient side of a transfer is not reversible
	_, err = f.engine.Reverse(ctx, bob, tr.Transactions.In.ID)
	assert.ErrorIs(t, err, domain.ErrUnsupportedReversalType)

	rev, err := f.engine.Reverse(ctx, alice, tr.Transactions.Out.ID)
	require.NoError(t, err)
	_, err = f.engine.Reverse(ctx, alice, rev.ReverseTransaction.ID)
	assert.ErrorIs(t, err, domain.ErrUnsupportedReversalType)
}

func TestReverseNeedsRecipientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.fundedOwner(t, "alice", "50")
	bob := f.owner(t, "bob")
	carol := f.owner(t, "carol")
	tr, err := f.engine.Transfer(ctx, alice, bob, dec("50"))
	require.NoError(t, err)
	_, err = f.engine.Transfer(ctx, bob, carol, dec("20"))
	require.NoError(t, err)

	_, err = f.engine.Reverse(ctx, alice, tr.Transactions.Out.ID)
	require.ErrorIs(t, err, domain.ErrInsufficientFundsForReversal)
	requireDecimal(t, "0", f.balance(t, alice))
	requireDecimal(t, "30", f.balance(t, bob))
	requireDecimal(t, "20", f.balance(t, carol))
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.fundedOwner(t, "alice", "100")
	bob := f.owner(t, "bob")

	const workers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Transfer(ctx, alice, bob, dec("10"))
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	requireDecimal(t, "0", f.balance(t, alice))
	requireDecimal(t, "100", f.balance(t, bob))
	assert.EqualValues(t, 1+2*10, f.countTransactions(t))
}

func TestConcurrentReversesApplyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.fundedOwner(t, "alice", "100")
	bob := f.fundedOwner(t, "bob", "100")
	tr, err := f.engine.Transfer(ctx, alice, bob, dec("60"))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Reverse(ctx, alice, tr.Transactions.Out.ID)
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrAlreadyReversed)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	requireDecimal(t, "100", f.balance(t, alice))
	requireDecimal(t, "100", f.balance(t, bob))
}

func TestRandomInterleavingsKeepInvariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owners := []uint{
		f.fundedOwner(t, "alice", "50"),
		f.fundedOwner(t, "bob", "50"),
		f.fundedOwner(t, "carol", "50"),
		f.fundedOwner(t, "dave", "50"),
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		deposited = dec("200")
		outs      = map[uint][]string{}
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 15; i++ {
				from := owners[rng.Intn(len(owners))]
				to := owners[rng.Intn(len(owners))]
				amount := decimal.NewFromInt(int64(rng.Intn(40) + 1))
				switch rng.Intn(3) {
				case 0:
					if _, err := f.engine.Deposit(ctx, from, amount); err == nil {
						mu.Lock()
						deposited = deposited.Add(amount)
						mu.Unlock()
					}
				case 1:
					res, err := f.engine.Transfer(ctx, from, to, amount)
					if err == nil {
						mu.Lock()
						outs[from] = append(outs[from], res.Transactions.Out.ID)
						mu.Unlock()
					} else {
						assert.Truef(t, errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrInvalidTarget), "unexpected %v", err)
					}
				case 2:
					mu.Lock()
					candidates := append([]string(nil), outs[from]...)
					mu.Unlock()
					if len(candidates) == 0 {
						continue
					}
					_, err := f.engine.Reverse(ctx, from, candidates[rng.Intn(len(candidates))])
					if err != nil {
						assert.Truef(t, errors.Is(err, domain.ErrAlreadyReversed) || errors.Is(err, domain.ErrInsufficientFundsForReversal), "unexpected %v", err)
					}
				}
			}
		}(int64(w))
	}
	wg.Wait()

	total := decimal.Zero
	for _, owner := range owners {
		balance := f.balance(t, owner)
		assert.False(t, balance.IsNegative(), "owner %d went negative: %s", owner, balance)
		total = total.Add(balance)
	}
	assert.Truef(t, deposited.Equal(total), "money not conserved: deposited %s, held %s", deposited, total)

	var reverses []domain.Transaction
	require.NoError(t, f.store.DB(ctx).Where("type = ?", domain.TypeReverse).Find(&reverses).Error)
	seen := map[string]bool{}
	for _, rev := range reverses {
		require.NotNil(t, rev.ReferenceID)
		assert.False(t, seen[*rev.ReferenceID], "transaction %s reversed twice", *rev.ReferenceID)
		seen[*rev.ReferenceID] = true
	}
}

func TestEngineWithRedisLocks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	f.engine = NewEngine(f.store, f.accounts, f.log, lock.NewRedisLocker(client, lock.DefaultRedisOptions()), nil)
	ctx := context.Background()
	alice := f.fundedOwner(t, "alice", "20")
	bob := f.owner(t, "bob")

	_, err := f.engine.Transfer(ctx, alice, bob, dec("5"))
	require.NoError(t, err)
	requireDecimal(t, "15", f.balance(t, alice))
	assert.Empty(t, mr.Keys(), "locks must be released")
}

func TestStorageFailureSurfacesAsUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.fundedOwner(t, "alice", "20")
	bob := f.owner(t, "bob")

	// Drop the log table so the append inside the unit of work fails after the balances moved
	require.NoError(t, f.store.DB(ctx).Migrator().DropTable(&domain.Transaction{}))

	_, err := f.engine.Transfer(ctx, alice, bob, dec("5"))
	require.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	requireDecimal(t, "20", f.balance(t, alice))
	requireDecimal(t, "0", f.balance(t, bob))
}
