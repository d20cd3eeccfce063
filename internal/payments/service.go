package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/telemetry"
	"interview-backend/internal/usage"
	"interview-backend/internal/users"
)

// UserDirectory is the slice of the users service settlement needs.
type UserDirectory interface {
	GetByID(ctx context.Context, userID string) (users.User, error)
	PlanFor(ctx context.Context, userID string) (string, error)
	SetPlan(ctx context.Context, userID, plan string) error
}

// Service creates orders and settles payments.
type Service struct {
	Repo          Repo
	Provider      Provider
	Usage         *usage.Service
	Users         UserDirectory
	KeySecret     string
	WebhookSecret string
}

// CreateOrderInput describes what the user is buying.
type CreateOrderInput struct {
	Type     string
	Plan     string
	Feature  string
	Quantity int
}

// CreateOrder validates the purchase, creates a gateway order, and persists
// the local record. The local record always lands, including when the
// gateway call fails, so support can reconcile later.
func (s *Service) CreateOrder(ctx context.Context, userID string, in CreateOrderInput) (Order, error) {
	if s.Provider == nil {
		return Order{}, ErrNotConfigured
	}
	if userID == "" {
		return Order{}, fmt.Errorf("%w: userId is required", ErrInvalidOrder)
	}
	if _, err := s.Users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Order{}, fmt.Errorf("%w: unknown user", ErrInvalidOrder)
		}
		return Order{}, err
	}

	order := Order{
		UserID:    userID,
		Type:      in.Type,
		Currency:  currencyINR,
		Status:    OrderStatusCreated,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	notes := map[string]string{"userId": userID, "type": in.Type}

	switch in.Type {
	case OrderTypeAddon:
		addon, ok := AddonFor(in.Feature)
		if !ok {
			return Order{}, fmt.Errorf("%w: unknown feature %q", ErrInvalidOrder, in.Feature)
		}
		quantity := in.Quantity
		if quantity == 0 {
			quantity = 1
		}
		if quantity < 0 {
			return Order{}, fmt.Errorf("%w: quantity must be greater than 0", ErrInvalidOrder)
		}
		order.Feature = in.Feature
		order.Quantity = quantity
		order.EffectiveQuantity = quantity * addon.QuantityMultiplier
		order.Amount = addon.UnitPrice * int64(quantity)
		notes["feature"] = in.Feature
	case OrderTypePlan:
		price, ok := PlanPrice(in.Plan)
		if !ok {
			return Order{}, fmt.Errorf("%w: plan %q is not purchasable", ErrInvalidOrder, in.Plan)
		}
		order.Plan = in.Plan
		order.Amount = price
		notes["plan"] = in.Plan
	default:
		return Order{}, fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, in.Type)
	}

	receipt := "rcpt_" + uuid.NewString()
	providerOrder, providerErr := s.Provider.CreateOrder(ctx, order.Amount*100, order.Currency, receipt, notes)
	if providerErr != nil {
		order.ID = "local_" + uuid.NewString()
	} else {
		order.ID = providerOrder.ID
	}
	if err := s.Repo.CreateOrder(ctx, order); err != nil {
		return Order{}, err
	}
	if providerErr != nil {
		telemetry.Error("payment.order_provider_failed", map[string]any{
			"user_id":  userID,
			"order_id": order.ID,
			"error":    providerErr.Error(),
		})
		return order, providerErr
	}

	telemetry.Info("payment.order_created", map[string]any{
		"user_id":  userID,
		"order_id": order.ID,
		"type":     order.Type,
		"amount":   order.Amount,
	})
	return order, nil
}

// Verify checks the client-supplied payment signature and settles the order.
// Replays return the cached result without re-mutating usage.
func (s *Service) Verify(ctx context.Context, userID, orderID, paymentID, signature string) (SettlementResult, error) {
	order, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return SettlementResult{}, err
	}
	if order.UserID != userID {
		return SettlementResult{}, ErrOrderNotFound
	}
	if !VerifyPaymentSignature(s.KeySecret, orderID, paymentID, signature) {
		telemetry.Warn("payment.bad_signature", map[string]any{
			"user_id":  userID,
			"order_id": orderID,
		})
		return SettlementResult{}, ErrBadSignature
	}
	return s.settle(ctx, order, paymentID)
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook verifies the gateway HMAC over the raw body and settles the
// referenced order. Replayed deliveries are harmless.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (SettlementResult, error) {
	if !VerifyWebhookSignature(s.WebhookSecret, rawBody, signature) {
		telemetry.Warn("payment.webhook_bad_signature", nil)
		return SettlementResult{}, ErrBadSignature
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return SettlementResult{}, fmt.Errorf("%w: malformed webhook payload", ErrInvalidOrder)
	}
	if envelope.Event != "payment.captured" {
		// Other events are acknowledged without settlement.
		return SettlementResult{}, nil
	}
	orderID := envelope.Payload.Payment.Entity.OrderID
	paymentID := envelope.Payload.Payment.Entity.ID
	if orderID == "" || paymentID == "" {
		return SettlementResult{}, fmt.Errorf("%w: webhook payload missing order or payment id", ErrInvalidOrder)
	}

	order, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return SettlementResult{}, err
	}
	return s.settle(ctx, order, paymentID)
}

// txSettler is implemented by repos that can run the claim, the purchase
// mutation, and the ledger insert in one transaction.
type txSettler interface {
	SettleInTx(ctx context.Context, orderID, paymentID, entryID string, settledAt time.Time) (bool, Order, int, int, error)
}

// settle claims the order and applies the purchase. The claim is the
// idempotency gate. Repos that support it settle in a single transaction;
// otherwise, if the usage mutation fails after the claim the order is
// reopened so a retry can settle it.
func (s *Service) settle(ctx context.Context, order Order, paymentID string) (SettlementResult, error) {
	if repo, ok := s.Repo.(txSettler); ok {
		return s.settleInTx(ctx, repo, order, paymentID)
	}

	claimed, claimedOrder, err := s.Repo.ClaimSettlement(ctx, order.ID, paymentID, time.Now().UTC())
	if err != nil {
		return SettlementResult{}, err
	}
	if !claimed {
		return SettlementResult{
			OrderID:           claimedOrder.ID,
			Settled:           claimedOrder.Status == OrderStatusSettled,
			AlreadySettled:    true,
			Type:              claimedOrder.Type,
			Plan:              claimedOrder.Plan,
			Feature:           claimedOrder.Feature,
			EffectiveQuantity: claimedOrder.EffectiveQuantity,
		}, nil
	}

	result, entry, err := s.applyPurchase(ctx, claimedOrder)
	if err != nil {
		if reopenErr := s.Repo.ReopenOrder(ctx, order.ID); reopenErr != nil {
			telemetry.Error("payment.reopen_failed", map[string]any{
				"order_id": order.ID,
				"error":    reopenErr.Error(),
			})
		}
		return SettlementResult{}, err
	}

	if err := s.Repo.AddLedger(ctx, entry); err != nil {
		telemetry.Error("payment.ledger_write_failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}
	metrics.IncSettlementCompleted()
	telemetry.Info("payment.settled", map[string]any{
		"user_id":  order.UserID,
		"order_id": order.ID,
		"type":     order.Type,
		"amount":   order.Amount,
	})
	return result, nil
}

func (s *Service) settleInTx(ctx context.Context, repo txSettler, order Order, paymentID string) (SettlementResult, error) {
	claimed, settled, previousLimit, newLimit, err := repo.SettleInTx(ctx, order.ID, paymentID, uuid.NewString(), time.Now().UTC())
	if err != nil {
		return SettlementResult{}, err
	}
	if !claimed {
		return SettlementResult{
			OrderID:           settled.ID,
			Settled:           settled.Status == OrderStatusSettled,
			AlreadySettled:    true,
			Type:              settled.Type,
			Plan:              settled.Plan,
			Feature:           settled.Feature,
			EffectiveQuantity: settled.EffectiveQuantity,
		}, nil
	}

	metrics.IncSettlementCompleted()
	telemetry.Info("payment.settled", map[string]any{
		"user_id":  settled.UserID,
		"order_id": settled.ID,
		"type":     settled.Type,
		"amount":   settled.Amount,
	})
	return SettlementResult{
		OrderID:           settled.ID,
		Settled:           true,
		Type:              settled.Type,
		Plan:              settled.Plan,
		Feature:           settled.Feature,
		EffectiveQuantity: settled.EffectiveQuantity,
		PreviousLimit:     previousLimit,
		NewLimit:          newLimit,
	}, nil
}

func (s *Service) applyPurchase(ctx context.Context, order Order) (SettlementResult, LedgerEntry, error) {
	result := SettlementResult{
		OrderID:           order.ID,
		Settled:           true,
		Type:              order.Type,
		Plan:              order.Plan,
		Feature:           order.Feature,
		EffectiveQuantity: order.EffectiveQuantity,
	}
	entry := LedgerEntry{
		ID:                uuid.NewString(),
		OrderID:           order.ID,
		UserID:            order.UserID,
		Type:              order.Type,
		Plan:              order.Plan,
		Feature:           order.Feature,
		Quantity:          order.Quantity,
		EffectiveQuantity: order.EffectiveQuantity,
		Amount:            order.Amount,
		Currency:          order.Currency,
		CreatedAt:         time.Now().UTC(),
	}

	switch order.Type {
	case OrderTypeAddon:
		plan, err := s.Users.PlanFor(ctx, order.UserID)
		if err != nil {
			return SettlementResult{}, LedgerEntry{}, err
		}
		plan = usage.NormalizePlan(plan)
		before, err := s.Usage.Get(ctx, order.UserID, plan)
		if err != nil {
			return SettlementResult{}, LedgerEntry{}, err
		}
		after, err := s.Usage.Grant(ctx, order.UserID, plan, order.Feature, order.EffectiveQuantity)
		if err != nil {
			return SettlementResult{}, LedgerEntry{}, err
		}
		result.PreviousLimit = before.Features[order.Feature].Limit
		result.NewLimit = after.Limit
		entry.PreviousLimit = result.PreviousLimit
		entry.NewLimit = result.NewLimit
	case OrderTypePlan:
		if err := s.Users.SetPlan(ctx, order.UserID, order.Plan); err != nil {
			return SettlementResult{}, LedgerEntry{}, err
		}
		// New plan starts with fresh counters and the plan's own limits.
		if err := s.Usage.Reset(ctx, order.UserID, order.Plan); err != nil {
			return SettlementResult{}, LedgerEntry{}, err
		}
	default:
		return SettlementResult{}, LedgerEntry{}, fmt.Errorf("unknown order type %q", order.Type)
	}
	return result, entry, nil
}

// PurchaseHistory lists the user's settlements, newest first.
func (s *Service) PurchaseHistory(ctx context.Context, userID string) ([]LedgerEntry, error) {
	return s.Repo.ListLedgerByUser(ctx, userID)
}
