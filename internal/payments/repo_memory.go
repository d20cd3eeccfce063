package payments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores orders and ledger entries in memory.
type MemoryRepo struct {
	mu     sync.Mutex
	orders map[string]Order
	ledger []LedgerEntry
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{orders: make(map[string]Order)}
}

func (r *MemoryRepo) CreateOrder(ctx context.Context, order Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
	return nil
}

func (r *MemoryRepo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (r *MemoryRepo) ClaimSettlement(ctx context.Context, orderID, paymentID string, settledAt time.Time) (bool, Order, error) {
	if err := ctx.Err(); err != nil {
		return false, Order{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return false, Order{}, ErrOrderNotFound
	}
	if order.Status != OrderStatusCreated {
		return false, order, nil
	}
	order.Status = OrderStatusSettled
	order.PaymentID = &paymentID
	order.SettledAt = &settledAt
	order.UpdatedAt = time.Now().UTC()
	r.orders[orderID] = order
	return true, order, nil
}

func (r *MemoryRepo) ReopenOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	order.Status = OrderStatusCreated
	order.PaymentID = nil
	order.SettledAt = nil
	order.UpdatedAt = time.Now().UTC()
	r.orders[orderID] = order
	return nil
}

func (r *MemoryRepo) AddLedger(ctx context.Context, entry LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledger = append(r.ledger, entry)
	return nil
}

func (r *MemoryRepo) ListLedgerByUser(ctx context.Context, userID string) ([]LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	out := []LedgerEntry{}
	for _, entry := range r.ledger {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
