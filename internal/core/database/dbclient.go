package db

import (
	"context"
	"database/sql"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type txKey struct{}

// conn returns the transaction carried by ctx, or the pool.
func (c *DatabaseClient) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return c.db
}

// WithTx runs fn in a transaction. A nested call joins the outer transaction.
func (c *DatabaseClient) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

var (
	_ core.TxRunner                = (*DatabaseClient)(nil)
	_ core.JobStore                = (*DatabaseClient)(nil)
	_ core.JobQueue                = (*Queue)(nil)
	_ core.QuotaStore              = (*DatabaseClient)(nil)
	_ core.KnowledgeSourceRegistry = (*DatabaseClient)(nil)
	_ core.EmbeddingModelStore     = (*DatabaseClient)(nil)
	_ core.VectorStore             = (*DatabaseClient)(nil)
)
