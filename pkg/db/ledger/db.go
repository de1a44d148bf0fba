// Package ledgerdb is the Postgres persistence layer for the settlement core:
// the append-only ledger entry table, payment and network-payment tables, and
// the campaign table feeding admission control.
package ledgerdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adchain-network/settlements/pkg/db/postgres"
	"go.uber.org/zap"
)

// DB wraps a PostgreSQL connection for the settlement tables.
type DB struct {
	postgres.Client
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, logger *zap.Logger) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(zap.String("component", "ledgerdb")))
	if err != nil {
		return nil, err
	}

	db := &DB{Client: client}
	if err := db.InitializeDB(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Close terminates the underlying connection pool.
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// InitializeDB ensures the required tables exist. Independent schemas are
// created in parallel; network_payments references ads_payments, so the two
// run in order within one op.
func (db *DB) InitializeDB(ctx context.Context) error {
	initStart := time.Now()

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"accounts", db.initAccounts},
		{"user_ledger_entries", db.initLedgerEntries},
		{"payments", db.initPayments},
		{"campaigns", db.initCampaigns},
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(initOps))

	for _, op := range initOps {
		wg.Add(1)
		go func(name string, fn func(context.Context) error) {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errChan <- fmt.Errorf("init %s: %w", name, err)
			}
		}(op.name, op.fn)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		return err
	}

	db.Logger.Info("settlement database initialized",
		zap.Duration("duration", time.Since(initStart)))

	return nil
}
