package usage

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/shared/server/middleware"
	"interview-backend/internal/shared/server/respond"
)

// PlanResolver looks up the subscription plan for a user.
type PlanResolver interface {
	PlanFor(ctx context.Context, userID string) (string, error)
}

// Handler wires HTTP handlers to the usage service.
type Handler struct {
	Svc   *Service
	Plans PlanResolver
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, plans PlanResolver) *Handler {
	return &Handler{Svc: svc, Plans: plans}
}

// RegisterRoutes attaches usage routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/usage", h.getUsage)
	rg.GET("/usage/check", h.checkAccess)
	rg.POST("/usage/consume", h.consume)
	rg.GET("/users/:id/usage", h.getUserUsage)
}

// RegisterDevRoutes attaches dev-only usage routes.
func (h *Handler) RegisterDevRoutes(rg *gin.RouterGroup) {
	rg.POST("/usage/reset", h.reset)
}

func (h *Handler) planFor(c *gin.Context) string {
	userID := middleware.UserIDFromContext(c)
	if h.Plans == nil {
		return PlanFree
	}
	plan, err := h.Plans.PlanFor(c.Request.Context(), userID)
	if err != nil {
		return PlanFree
	}
	return NormalizePlan(plan)
}

func (h *Handler) getUsage(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	snap, err := h.Svc.Get(c.Request.Context(), userID, h.planFor(c))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load usage", nil)
		return
	}
	respond.JSON(c, http.StatusOK, snap)
}

func (h *Handler) getUserUsage(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" || c.Param("id") != userID {
		respond.Error(c, http.StatusForbidden, "forbidden", "cannot read another user's usage", nil)
		return
	}
	h.getUsage(c)
}

func (h *Handler) checkAccess(c *gin.Context) {
	feature := c.Query("feature")
	if feature == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "feature is required", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)
	access, err := h.Svc.CheckAccess(c.Request.Context(), userID, h.planFor(c), feature)
	if err != nil {
		if errors.Is(err, ErrUnknownFeature) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unknown feature", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to check access", nil)
		return
	}
	respond.JSON(c, http.StatusOK, access)
}

func (h *Handler) consume(c *gin.Context) {
	var req struct {
		Feature string `json:"feature"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Feature == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "feature is required", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)
	fu, err := h.Svc.Consume(c.Request.Context(), userID, h.planFor(c), req.Feature)
	if err != nil {
		if errors.Is(err, ErrUnknownFeature) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unknown feature", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to record usage", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"success":   true,
		"used":      fu.Used,
		"limit":     fu.Limit,
		"remaining": fu.Remaining(),
	})
}

func (h *Handler) reset(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if err := h.Svc.Reset(c.Request.Context(), userID, h.planFor(c)); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to reset usage", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"ok": true})
}
