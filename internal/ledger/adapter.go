// Package ledger provides the narrow adapter surface through which the core
// reads and writes the external append-only ledger. Everything above this
// package sees envelopes and transaction ids, never raw node APIs.
package ledger

import (
	"context"

	"kasocial/internal/models"
)

// Fetcher supplies raw transactions by address, id or recency. Every call is
// a suspension point with its own timeout; callers must pass a context.
type Fetcher interface {
	// TransactionsByAddress returns the address's confirmed transactions,
	// most recent first.
	TransactionsByAddress(ctx context.Context, address string, limit, offset int) ([]models.TransactionEnvelope, error)

	// TransactionByID fetches one transaction. Returns ErrNotFound when the
	// ledger has no such transaction.
	TransactionByID(ctx context.Context, id string) (*models.TransactionEnvelope, error)

	// RecentTransactions returns the newest network-wide transactions.
	RecentTransactions(ctx context.Context, limit int) ([]models.TransactionEnvelope, error)

	// SenderAddress derives the authoring address of a transaction. This is
	// resolved from the first input's previous outpoint, not from signature
	// recovery; real address recovery belongs to the node, not this core.
	SenderAddress(ctx context.Context, env *models.TransactionEnvelope) (string, error)
}

// Submitter signs and publishes a payload, returning the resulting
// transaction id. Signing happens in an external wallet component.
type Submitter interface {
	Submit(ctx context.Context, payload []byte) (string, error)
}
