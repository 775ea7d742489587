// Package ledger implements the double-entry ledger: the account registry, the
// append-only transaction log, the engine that moves money between them and the
// read-only history query.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"ledger_system/internal/db"
	"ledger_system/internal/domain"
	"ledger_system/internal/events"
	"ledger_system/internal/lock"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// businessErrors are returned to callers as-is. Anything else escaping a unit of
// work is reported as domain.ErrLedgerUnavailable.
var businessErrors = []error{
	domain.ErrInvalidAmount,
	domain.ErrInvalidTarget,
	domain.ErrAccountNotFound,
	domain.ErrTransactionNotFound,
	domain.ErrForbidden,
	domain.ErrInsufficientFunds,
	domain.ErrInsufficientFundsForReversal,
	domain.ErrUnreversible,
	domain.ErrAlreadyReversed,
	domain.ErrUnsupportedReversalType,
}

// DepositResult is returned by Engine.Deposit.
type DepositResult struct {
	Transaction *domain.Transaction `json:"transaction"`
	Balance     decimal.Decimal     `json:"balance"`
}

// TransferPair holds both records of one transfer.
type TransferPair struct {
	Out *domain.Transaction `json:"out"`
	In  *domain.Transaction `json:"in"`
}

// TransferResult is returned by Engine.Transfer.
type TransferResult struct {
	SenderBalance    decimal.Decimal `json:"sender_balance"`
	RecipientBalance decimal.Decimal `json:"recipient_balance"`
	Transactions     TransferPair    `json:"transactions"`
}

// ReverseResult is returned by Engine.Reverse. Balance is the caller's balance.
type ReverseResult struct {
	ReverseTransaction *domain.Transaction `json:"reverse_transaction"`
	Balance            decimal.Decimal     `json:"balance"`
	RecipientOwnerID   uint                `json:"-"`
}

// Engine runs deposit, transfer and reverse. Each operation commits its balance
// changes and its transaction records in one store transaction, after taking the
// per-account locks of every account it touches.
type Engine struct {
	store     *db.Store
	accounts  *Registry
	log       *Log
	locker    lock.Locker
	publisher events.Publisher
}

// NewEngine wires an engine. A nil locker means in-process locks and a nil
// publisher drops events.
func NewEngine(store *db.Store, accounts *Registry, log *Log, locker lock.Locker, publisher events.Publisher) *Engine {
	if locker == nil {
		locker = lock.NewMutexLocker()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Engine{
		store:     store,
		accounts:  accounts,
		log:       log,
		locker:    locker,
		publisher: publisher,
	}
}

// Deposit credits amount to the owner's account.
func (e *Engine) Deposit(ctx context.Context, ownerID uint, amount decimal.Decimal) (*DepositResult, error) {
	if !domain.ValidAmount(amount) {
		return nil, domain.ErrInvalidAmount
	}
	account, err := e.accounts.GetByOwner(ctx, e.store.DB(ctx), ownerID)
	if err != nil {
		return nil, surface(err)
	}

	unlock, err := e.lock(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var res DepositResult
	err = e.store.Atomic(ctx, func(tx *gorm.DB) error {
		balance, err := e.accounts.Adjust(ctx, tx, account.ID, amount)
		if err != nil {
			return err
		}
		rec, err := e.log.Append(ctx, tx, &domain.Transaction{
			AccountID: account.ID,
			OwnerID:   ownerID,
			Type:      domain.TypeDeposit,
			Amount:    amount,
		})
		if err != nil {
			return err
		}
		res = DepositResult{Transaction: rec, Balance: balance}
		return nil
	})
	unlock()
	if err != nil {
		return nil, surface(err)
	}
	e.publish(ctx, res.Transaction)
	return &res, nil
}

// Transfer moves amount from the sender's account to the recipient's and records
// a transfer_out / transfer_in pair that reference each other.
func (e *Engine) Transfer(ctx context.Context, senderID, recipientID uint, amount decimal.Decimal) (*TransferResult, error) {
	if !domain.ValidAmount(amount) {
		return nil, domain.ErrInvalidAmount
	}
	if senderID == recipientID {
		return nil, domain.ErrInvalidTarget
	}
	from, err := e.accounts.GetByOwner(ctx, e.store.DB(ctx), senderID)
	if err != nil {
		return nil, surface(err)
	}
	to, err := e.accounts.GetByOwner(ctx, e.store.DB(ctx), recipientID)
	if err != nil {
		return nil, surface(err)
	}
	// Fast rejection; the conditional update below is what actually guarantees it
	if from.Balance.LessThan(amount) {
		return nil, domain.ErrInsufficientFunds
	}

	unlock, err := e.lock(ctx, from.ID, to.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	fromID, toID := from.ID, to.ID
	var res TransferResult
	err = e.store.Atomic(ctx, func(tx *gorm.DB) error {
		balances, err := e.adjustAll(ctx, tx, map[uint]decimal.Decimal{
			fromID: amount.Neg(),
			toID:   amount,
		})
		if err != nil {
			return err
		}
		outID, outAt, err := newTransactionID()
		if err != nil {
			return storageError(err)
		}
		inID, inAt, err := newTransactionID()
		if err != nil {
			return storageError(err)
		}
		out, err := e.log.Append(ctx, tx, &domain.Transaction{
			ID:                    outID,
			AccountID:             fromID,
			OwnerID:               senderID,
			Type:                  domain.TypeTransferOut,
			Amount:                amount,
			CounterpartyAccountID: &toID,
			ReferenceID:           &inID,
			CreatedAt:             outAt,
		})
		if err != nil {
			return err
		}
		in, err := e.log.Append(ctx, tx, &domain.Transaction{
			ID:                    inID,
			AccountID:             toID,
			OwnerID:               recipientID,
			Type:                  domain.TypeTransferIn,
			Amount:                amount,
			CounterpartyAccountID: &fromID,
			ReferenceID:           &outID,
			CreatedAt:             inAt,
		})
		if err != nil {
			return err
		}
		res = TransferResult{
			SenderBalance:    balances[fromID],
			RecipientBalance: balances[toID],
			Transactions:     TransferPair{Out: out, In: in},
		}
		return nil
	})
	unlock()
	if err != nil {
		return nil, surface(err)
	}
	e.publish(ctx, res.Transactions.Out, res.Transactions.In)
	return &res, nil
}

// Reverse undoes a transfer_out made by the caller: the sender is credited, the
// original recipient is debited, and a reverse record referencing the original is
// written on the sender's account. Only the debit side of a transfer is reversible.
func (e *Engine) Reverse(ctx context.Context, ownerID uint, transactionID string) (*ReverseResult, error) {
	read := e.store.DB(ctx)
	orig, err := e.log.Find(ctx, read, transactionID)
	if err != nil {
		return nil, surface(err)
	}
	if orig.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	if orig.Type == domain.TypeDeposit {
		return nil, domain.ErrUnreversible
	}
	existing, err := e.log.FindReverseOf(ctx, read, orig.ID)
	if err != nil {
		return nil, surface(err)
	}
	if existing != nil {
		return nil, domain.ErrAlreadyReversed
	}
	if orig.Type != domain.TypeTransferOut {
		return nil, domain.ErrUnsupportedReversalType
	}
	in, err := e.log.Counterpart(ctx, read, orig)
	if err != nil {
		return nil, surface(err)
	}
	recipient, err := e.accounts.Get(ctx, read, in.AccountID)
	if err != nil {
		return nil, surface(err)
	}
	if recipient.Balance.LessThan(orig.Amount) {
		return nil, domain.ErrInsufficientFundsForReversal
	}

	senderAccountID, recipientAccountID := orig.AccountID, recipient.ID
	unlock, err := e.lock(ctx, senderAccountID, recipientAccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var res ReverseResult
	err = e.store.Atomic(ctx, func(tx *gorm.DB) error {
		// Another instance may have reversed it since the read above
		existing, err := e.log.FindReverseOf(ctx, tx, orig.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyReversed
		}
		balances, err := e.adjustAll(ctx, tx, map[uint]decimal.Decimal{
			senderAccountID:    orig.Amount,
			recipientAccountID: orig.Amount.Neg(),
		})
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return domain.ErrInsufficientFundsForReversal
		}
		if err != nil {
			return err
		}
		origID := orig.ID
		rec, err := e.log.Append(ctx, tx, &domain.Transaction{
			AccountID:             senderAccountID,
			OwnerID:               ownerID,
			Type:                  domain.TypeReverse,
			Amount:                orig.Amount,
			CounterpartyAccountID: &recipientAccountID,
			ReferenceID:           &origID,
		})
		if err != nil {
			return err
		}
		res = ReverseResult{
			ReverseTransaction: rec,
			Balance:            balances[senderAccountID],
			RecipientOwnerID:   recipient.OwnerID,
		}
		return nil
	})
	unlock()
	if err != nil {
		return nil, surface(err)
	}
	e.publish(ctx, res.ReverseTransaction)
	return &res, nil
}

// adjustAll applies every delta in ascending account order, matching the lock
// order so concurrent units of work take row locks in the same sequence.
func (e *Engine) adjustAll(ctx context.Context, tx *gorm.DB, deltas map[uint]decimal.Decimal) (map[uint]decimal.Decimal, error) {
	ids := make([]uint, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	balances := make(map[uint]decimal.Decimal, len(ids))
	for _, id := range ids {
		balance, err := e.accounts.Adjust(ctx, tx, id, deltas[id])
		if err != nil {
			return nil, err
		}
		balances[id] = balance
	}
	return balances, nil
}

func (e *Engine) lock(ctx context.Context, accountIDs ...uint) (lock.Unlock, error) {
	keys := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		keys = append(keys, lock.AccountKey(id))
	}
	unlock, err := e.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	// Released once after commit; the deferred call only covers panics
	return lock.Unlock(sync.OnceFunc(unlock)), nil
}

// publish announces committed records. The money has already moved, so a broker
// failure is logged and otherwise ignored.
func (e *Engine) publish(ctx context.Context, recs ...*domain.Transaction) {
	evs := make([]events.TransactionCompleted, 0, len(recs))
	for _, rec := range recs {
		evs = append(evs, events.FromTransaction(rec))
	}
	if err := e.publisher.Publish(ctx, evs...); err != nil {
		logrus.WithFields(logrus.Fields{
			"transaction_id": recs[0].ID,
			"type":           recs[0].Type,
			"error":          err.Error(),
		}).Warn("Failed to publish transaction event")
	}
}

// surface passes business errors through and hides everything else behind
// ErrLedgerUnavailable, keeping the cause in the chain for logging.
func surface(err error) error {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
}
