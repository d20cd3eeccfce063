package payments

import (
	"context"
	"time"
)

// Repo persists orders and the settlement ledger.
type Repo interface {
	CreateOrder(ctx context.Context, order Order) error
	GetOrder(ctx context.Context, orderID string) (Order, error)

	// ClaimSettlement atomically flips a created order to settled. It
	// returns claimed=false when the order was already settled, making
	// replayed verifications and webhooks harmless.
	ClaimSettlement(ctx context.Context, orderID, paymentID string, settledAt time.Time) (claimed bool, order Order, err error)

	// ReopenOrder reverts a claimed order so a later retry can settle it.
	// Used when the usage mutation fails after the claim.
	ReopenOrder(ctx context.Context, orderID string) error

	AddLedger(ctx context.Context, entry LedgerEntry) error
	ListLedgerByUser(ctx context.Context, userID string) ([]LedgerEntry, error)
}
