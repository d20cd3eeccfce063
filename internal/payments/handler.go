package payments

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/shared/server/middleware"
	"interview-backend/internal/shared/server/respond"
)

const webhookSignatureHeader = "X-Razorpay-Signature"

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/orders", h.createOrder)
	rg.POST("/payments/verify", h.verify)
	rg.POST("/payments/webhook", h.webhook)
	rg.GET("/payments/addons/pricing", h.pricing)
	rg.GET("/payments/history", h.history)
	rg.GET("/users/:id/purchases", h.userPurchases)
}

type createOrderRequest struct {
	Type     string `json:"type"`
	Plan     string `json:"plan"`
	Feature  string `json:"feature"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) createOrder(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}

	order, err := h.Svc.CreateOrder(c.Request.Context(), userID, CreateOrderInput{
		Type:     req.Type,
		Plan:     req.Plan,
		Feature:  req.Feature,
		Quantity: req.Quantity,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotConfigured):
			respond.Error(c, http.StatusServiceUnavailable, "payments_not_configured", "payments are not configured on this deployment", nil)
		case errors.Is(err, ErrInvalidOrder):
			respond.Error(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		case errors.Is(err, ErrProviderBadRequest):
			respond.Error(c, http.StatusBadGateway, "provider_rejected", "payment provider rejected the order", nil)
		case errors.Is(err, ErrProviderUnavailable):
			respond.Error(c, http.StatusBadGateway, "provider_unavailable", "payment provider unavailable", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create order", nil)
		}
		return
	}
	respond.JSON(c, http.StatusCreated, order)
}

type verifyRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

func (h *Handler) verify(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" || req.PaymentID == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "orderId, paymentId, and signature are required", nil)
		return
	}

	result, err := h.Svc.Verify(c.Request.Context(), userID, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "order not found", nil)
		case errors.Is(err, ErrBadSignature):
			respond.Error(c, http.StatusUnauthorized, "bad_signature", "payment signature mismatch", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to verify payment", nil)
		}
		return
	}
	respond.OK(c, result)
}

// webhook authenticates with the gateway HMAC over the raw body, not the
// bearer token the rest of the API uses.
func (h *Handler) webhook(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "could not read body", nil)
		return
	}
	signature := c.GetHeader(webhookSignatureHeader)

	result, err := h.Svc.HandleWebhook(c.Request.Context(), rawBody, signature)
	if err != nil {
		switch {
		case errors.Is(err, ErrBadSignature):
			respond.Error(c, http.StatusUnauthorized, "bad_signature", "webhook signature mismatch", nil)
		case errors.Is(err, ErrInvalidOrder):
			respond.Error(c, http.StatusBadRequest, "invalid_request", "malformed webhook payload", nil)
		case errors.Is(err, ErrOrderNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "order not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to process webhook", nil)
		}
		return
	}
	respond.OK(c, result)
}

func (h *Handler) pricing(c *gin.Context) {
	respond.OK(c, AddonCatalog())
}

func (h *Handler) history(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	purchases, err := h.Svc.PurchaseHistory(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load purchase history", nil)
		return
	}
	respond.OK(c, gin.H{"userId": userID, "purchases": purchases})
}

func (h *Handler) userPurchases(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	if c.Param("id") != userID {
		respond.Error(c, http.StatusForbidden, "forbidden", "cannot read another user's purchases", nil)
		return
	}
	h.history(c)
}

func (h *Handler) requireUser(c *gin.Context) (string, bool) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		return "", false
	}
	return userID, true
}
