package interviews

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/sessions"
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
	rg.POST("/interviews", h.start)
	rg.GET("/interviews/:id", h.get)
	rg.POST("/interviews/:id/messages", h.respond)
	rg.POST("/interviews/:id/end", h.end)
	rg.GET("/interviews/:id/analysis", h.analysis)
	rg.GET("/interviews/:id/suggested-answers", h.suggestedAnswers)
	rg.GET("/sessions/:id/progress", h.progress)
}

type startRequest struct {
	SessionID     string `json:"sessionId"`
	InterviewType string `json:"interviewType"`
}

func (h *Handler) start(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}
	if req.SessionID == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "sessionId is required", nil)
		return
	}

	result, err := h.Svc.Start(c.Request.Context(), userID, req.SessionID, req.InterviewType)
	if err != nil {
		var limitErr *usage.LimitError
		switch {
		case errors.Is(err, sessions.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "session not found", nil)
		case errors.Is(err, ErrSessionNotReady):
			respond.Error(c, http.StatusBadRequest, "session_not_ready", "analysis is not completed", nil)
		case errors.Is(err, ErrMissingSessionData):
			respond.Error(c, http.StatusInternalServerError, "internal_error", "required analysis data missing", nil)
		case errors.As(err, &limitErr):
			respond.Error(c, http.StatusForbidden, "limit_reached", "mock interview limit reached for your plan", limitErr.Details())
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start interview", nil)
		}
		return
	}

	respond.JSON(c, http.StatusCreated, gin.H{
		"interviewId":   result.Interview.ID,
		"sessionId":     result.Interview.SessionID,
		"interviewType": result.Interview.InterviewType,
		"greeting":      result.Greeting,
		"usageInfo": gin.H{
			"feature":   usage.FeatureMockInterviews,
			"used":      result.Usage.Used,
			"limit":     result.Usage.Limit,
			"remaining": result.Usage.Remaining(),
		},
	})
}

func (h *Handler) get(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	interview, err := h.Svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.renderLookupError(c, err)
		return
	}
	respond.OK(c, interview)
}

type respondRequest struct {
	Message string `json:"message"`
}

func (h *Handler) respond(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "message is required", nil)
		return
	}

	reply, err := h.Svc.Respond(c.Request.Context(), userID, c.Param("id"), req.Message)
	if err != nil {
		if errors.Is(err, ErrNotActive) {
			respond.Error(c, http.StatusBadRequest, "interview_not_active", "interview is not active", nil)
			return
		}
		h.renderLookupError(c, err)
		return
	}
	respond.OK(c, gin.H{"interviewerResponse": reply})
}

func (h *Handler) end(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	interview, err := h.Svc.End(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.renderLookupError(c, err)
		return
	}
	respond.OK(c, gin.H{
		"status":         interview.Status,
		"analysisStatus": interview.AnalysisStatus,
	})
}

func (h *Handler) analysis(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	interview, err := h.Svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.renderLookupError(c, err)
		return
	}

	switch interview.AnalysisStatus {
	case AnalysisProcessing:
		respond.JSON(c, http.StatusAccepted, gin.H{"status": AnalysisProcessing, "message": "analysis is still processing"})
		return
	case AnalysisFailed:
		details := ""
		if interview.AnalysisError != nil {
			details = *interview.AnalysisError
		}
		respond.Error(c, http.StatusInternalServerError, "analysis_failed", "interview analysis failed", details)
		return
	case AnalysisCompleted:
	default:
		respond.Error(c, http.StatusBadRequest, "analysis_not_available", "analysis not available, end the interview first", nil)
		return
	}

	transcript := make([]gin.H, 0, len(interview.Conversation))
	for _, turn := range interview.Conversation {
		speaker := "Candidate"
		if turn.Role == RoleInterviewer {
			speaker = "Interviewer"
		}
		transcript = append(transcript, gin.H{"speaker": speaker, "text": turn.Content})
	}
	payload := gin.H{
		"interviewId":   interview.ID,
		"analysis":      interview.Analysis,
		"transcript":    transcript,
		"interviewType": interview.InterviewType,
	}
	if interview.EndedAt != nil {
		payload["durationSeconds"] = int(interview.EndedAt.Sub(interview.StartedAt) / time.Second)
	}
	respond.OK(c, payload)
}

func (h *Handler) suggestedAnswers(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	force := c.Query("force") == "true"
	suggestions, err := h.Svc.SuggestedAnswers(c.Request.Context(), userID, c.Param("id"), force)
	if err != nil {
		if errors.Is(err, ErrMissingSessionData) {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "missing required data for generating suggestions", nil)
			return
		}
		h.renderLookupError(c, err)
		return
	}
	respond.OK(c, suggestions)
}

func (h *Handler) progress(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	history, err := h.Svc.ProgressHistory(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "session not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load progress history", nil)
		return
	}
	respond.OK(c, history)
}

func (h *Handler) requireUser(c *gin.Context) (string, bool) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		return "", false
	}
	return userID, true
}

func (h *Handler) renderLookupError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "interview not found", nil)
		return
	}
	respond.Error(c, http.StatusInternalServerError, "internal_error", "interview operation failed", nil)
}
