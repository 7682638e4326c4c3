package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Ledger repos run against the transaction when one is set, otherwise
// against their own handle.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// From wraps a plain context; the repo uses its own database handle.
func From(ctx context.Context) Context {
	return Context{Ctx: ctx}
}

// WithTx pins all repo calls under this Context to one transaction.
func WithTx(ctx context.Context, tx *gorm.DB) Context {
	return Context{Ctx: ctx, Tx: tx}
}
