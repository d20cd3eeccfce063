package enhance

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/shared/server/middleware"
	"interview-backend/internal/shared/server/respond"
	"interview-backend/internal/usage"
)

// Handler wires the enhancement endpoint to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches enhancement routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/enhance", h.enhance)
}

func (h *Handler) enhance(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	var req struct {
		SectionType string `json:"sectionType"`
		Content     string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "content is required", nil)
		return
	}

	result, err := h.Svc.Enhance(c.Request.Context(), userID, req.SectionType, req.Content)
	if err != nil {
		var limitErr *usage.LimitError
		switch {
		case errors.As(err, &limitErr):
			respond.Error(c, http.StatusForbidden, "limit_reached", "AI enhancement limit reached for your plan", limitErr.Details())
		case strings.Contains(err.Error(), "validation"):
			respond.Error(c, http.StatusBadRequest, "invalid_request", "content is required", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to enhance section", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"sectionType":     result.SectionType,
		"enhancedContent": result.Enhanced,
		"usageInfo": gin.H{
			"feature":   usage.FeatureAIEnhance,
			"used":      result.Usage.Used,
			"limit":     result.Usage.Limit,
			"remaining": result.Usage.Remaining(),
		},
	})
}
