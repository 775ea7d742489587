package db

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultRetryBackoff = 10 * time.Millisecond

// Store is the ledger's durable storage: a gorm handle plus an all-or-nothing
// unit of work that is replayed on transient conflicts.
type Store struct {
	db         *gorm.DB
	maxRetries int
	backoff    time.Duration
}

// NewStore wraps db. maxRetries bounds how often a conflicting unit of work is replayed.
func NewStore(db *gorm.DB, maxRetries int) *Store {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Store{db: db, maxRetries: maxRetries, backoff: defaultRetryBackoff}
}

// DB returns a handle for reads outside a unit of work.
func (s *Store) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Atomic runs fn inside one database transaction. Either everything fn wrote
// commits or nothing does. fn must only use the tx it is given, and must be
// safe to run again: a retryable conflict rolls back and replays it.
func (s *Store) Atomic(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err = s.db.WithContext(ctx).Transaction(fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"error":   err.Error(),
		}).Warn("Ledger transaction conflict, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt+1)):
		}
	}
	return fmt.Errorf("gave up after %d retries: %w", s.maxRetries, err)
}
