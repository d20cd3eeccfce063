package payments

import (
	"time"

	"interview-backend/internal/usage"
)

const (
	OrderTypePlan  = "plan"
	OrderTypeAddon = "addon"
)

const (
	OrderStatusCreated = "created"
	OrderStatusSettled = "settled"
)

const currencyINR = "INR"

// Addon describes one purchasable usage pack. UnitPrice is in rupees;
// QuantityMultiplier is how many uses one unit grants.
type Addon struct {
	Feature            string `json:"feature"`
	UnitPrice          int64  `json:"unitPrice"`
	Currency           string `json:"currency"`
	Description        string `json:"description"`
	QuantityMultiplier int    `json:"quantityMultiplier"`
}

var addonCatalog = map[string]Addon{
	usage.FeatureResumeAnalyses: {
		Feature:            usage.FeatureResumeAnalyses,
		UnitPrice:          19,
		Currency:           currencyINR,
		Description:        "Resume Analysis",
		QuantityMultiplier: 1,
	},
	usage.FeatureMockInterviews: {
		Feature:            usage.FeatureMockInterviews,
		UnitPrice:          49,
		Currency:           currencyINR,
		Description:        "Mock Interview",
		QuantityMultiplier: 1,
	},
	usage.FeaturePDFDownloads: {
		Feature:            usage.FeaturePDFDownloads,
		UnitPrice:          9,
		Currency:           currencyINR,
		Description:        "PDF Download Pack",
		QuantityMultiplier: 10,
	},
	usage.FeatureAIEnhance: {
		Feature:            usage.FeatureAIEnhance,
		UnitPrice:          9,
		Currency:           currencyINR,
		Description:        "AI Enhancement Pack",
		QuantityMultiplier: 5,
	},
}

// AddonCatalog returns the full addon pricing table keyed by feature.
func AddonCatalog() map[string]Addon {
	out := make(map[string]Addon, len(addonCatalog))
	for feature, addon := range addonCatalog {
		out[feature] = addon
	}
	return out
}

// AddonFor looks up one addon by feature.
func AddonFor(feature string) (Addon, bool) {
	addon, ok := addonCatalog[feature]
	return addon, ok
}

// Monthly plan prices in rupees. Free has no order path.
var planPrices = map[string]int64{
	usage.PlanStarter:  99,
	usage.PlanStandard: 199,
	usage.PlanPro:      299,
}

// PlanPrice returns the price for a purchasable plan.
func PlanPrice(plan string) (int64, bool) {
	price, ok := planPrices[plan]
	return price, ok
}

// Order is the local record of a provider order. ID is the provider's order
// id once the provider call succeeds, or a locally generated one otherwise.
type Order struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	Type              string     `json:"type"`
	Plan              string     `json:"plan,omitempty"`
	Feature           string     `json:"feature,omitempty"`
	Quantity          int        `json:"quantity,omitempty"`
	EffectiveQuantity int        `json:"effectiveQuantity,omitempty"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	PaymentID         *string    `json:"paymentId,omitempty"`
	SettledAt         *time.Time `json:"settledAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// LedgerEntry records one completed settlement.
type LedgerEntry struct {
	ID                string    `json:"id"`
	OrderID           string    `json:"orderId"`
	UserID            string    `json:"userId"`
	Type              string    `json:"type"`
	Plan              string    `json:"plan,omitempty"`
	Feature           string    `json:"feature,omitempty"`
	Quantity          int       `json:"quantity,omitempty"`
	EffectiveQuantity int       `json:"effectiveQuantity,omitempty"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	PreviousLimit     int       `json:"previousLimit,omitempty"`
	NewLimit          int       `json:"newLimit,omitempty"`
	CreatedAt         time.Time `json:"purchaseDate"`
}

// SettlementResult is returned by verify and webhook settlement.
type SettlementResult struct {
	OrderID           string `json:"orderId"`
	Settled           bool   `json:"settled"`
	AlreadySettled    bool   `json:"alreadySettled"`
	Type              string `json:"type"`
	Plan              string `json:"plan,omitempty"`
	Feature           string `json:"feature,omitempty"`
	EffectiveQuantity int    `json:"effectiveQuantity,omitempty"`
	PreviousLimit     int    `json:"previousLimit,omitempty"`
	NewLimit          int    `json:"newLimit,omitempty"`
}
