package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for transaction adapters.
type (
	// TransactionSource hands out a user's full ledger. Forecasting reads
	// only from this port.
	TransactionSource interface {
		ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
	}

	// TransactionWriter persists imported transactions, replacing rows with
	// the same id.
	TransactionWriter interface {
		UpsertTransactions(ctx context.Context, txs []core.Transaction) (int, error)
	}
)
