package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/shared/server/middleware"
	"interview-backend/internal/shared/server/respond"
	"interview-backend/internal/usage"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
	rg.POST("/users/:id/plan", h.changePlan)
}

func (h *Handler) me(c *gin.Context) {
	if h.Svc == nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "service unavailable", nil)
		return
	}
	if isGuest, ok := c.Get("isGuest"); ok {
		if guest, ok2 := isGuest.(bool); ok2 && guest {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
			return
		}
	}
	userID := middleware.UserIDFromContext(c)
	user, err := h.Svc.GetByID(c.Request.Context(), userID)
	if err != nil {
		if err == ErrNotFound {
			respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load user", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"fullName":   user.FullName,
		"pictureUrl": user.PictureURL,
		"plan":       user.Plan,
	})
}

func (h *Handler) changePlan(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" || c.Param("id") != userID {
		respond.Error(c, http.StatusForbidden, "forbidden", "cannot change another user's plan", nil)
		return
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Plan == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "plan is required", nil)
		return
	}

	user, err := h.Svc.ChangePlan(c.Request.Context(), userID, req.Plan)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownPlan):
			respond.Error(c, http.StatusBadRequest, "invalid_request", "unknown plan", nil)
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to change plan", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"success": true,
		"plan":    user.Plan,
		"limits":  usage.PlanLimits(user.Plan),
	})
}
