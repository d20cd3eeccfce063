package sessions

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/shared/server/middleware"
	"interview-backend/internal/shared/server/respond"
	"interview-backend/internal/usage"
)

const maxUploadBytes = 10 << 20

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.create)
	rg.GET("/sessions", h.list)
	rg.GET("/sessions/:id", h.get)
	rg.GET("/sessions/:id/status", h.status)
	rg.POST("/sessions/:id/timeline", h.timeline)
	rg.POST("/sessions/:id/rewrite", h.rewrite)
}

type createRequest struct {
	ResumeText     string `json:"resumeText"`
	JobDescription string `json:"jobDescription"`
	TargetRole     string `json:"targetRole"`
}

func (h *Handler) create(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		return
	}

	in := CreateInput{}
	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/form-data") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "invalid_request", "file is required", nil)
			return
		}
		if fileHeader.Size > maxUploadBytes {
			respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "file exceeds the 10MB limit", nil)
			return
		}
		f, err := fileHeader.Open()
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "invalid_request", "could not read file", nil)
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
		f.Close()
		if err != nil || int64(len(data)) > maxUploadBytes {
			respond.Error(c, http.StatusBadRequest, "invalid_request", "could not read file", nil)
			return
		}
		in.FileName = fileHeader.Filename
		in.FileData = data
		in.MimeType = fileHeader.Header.Get("Content-Type")
		in.JobDescription = c.PostForm("jobDescription")
		in.TargetRole = c.PostForm("targetRole")
	} else {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
			return
		}
		in.ResumeText = req.ResumeText
		in.JobDescription = req.JobDescription
		in.TargetRole = req.TargetRole
	}

	session, err := h.Svc.Create(c.Request.Context(), userID, in)
	if err != nil {
		var limitErr *usage.LimitError
		switch {
		case errors.As(err, &limitErr):
			respond.Error(c, http.StatusForbidden, "limit_reached", "resume analysis limit reached for your plan", limitErr.Details())
		case strings.Contains(err.Error(), "validation"):
			respond.Error(c, http.StatusBadRequest, "invalid_request", trimValidation(err), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create session", nil)
		}
		return
	}
	respond.JSON(c, http.StatusAccepted, session)
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	sessions, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list sessions", nil)
		return
	}
	respond.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		return
	}
	session, err := h.Svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "session not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load session", nil)
		return
	}
	respond.OK(c, session)
}

func (h *Handler) status(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		return
	}
	session, err := h.Svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "session not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load session", nil)
		return
	}
	payload := gin.H{
		"id":       session.ID,
		"status":   session.Status,
		"stage":    session.Stage,
		"progress": session.Progress,
		"stalled":  h.Svc.Stalled(session, time.Now().UTC()),
	}
	if session.ErrorCode != nil {
		payload["errorCode"] = *session.ErrorCode
	}
	if session.ErrorMessage != nil {
		payload["errorMessage"] = *session.ErrorMessage
	}
	if summary := Summary(session); summary != nil {
		payload["summary"] = summary
	}
	respond.OK(c, payload)
}

type timelineRequest struct {
	Days int `json:"days"`
}

func (h *Handler) timeline(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		return
	}
	var req timelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}

	timeline, err := h.Svc.Timeline(c.Request.Context(), userID, c.Param("id"), req.Days)
	if err != nil {
		h.renderDerivedError(c, err, "failed to generate timeline")
		return
	}
	respond.OK(c, timeline)
}

type rewriteRequest struct {
	Section string `json:"section"`
}

func (h *Handler) rewrite(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		return
	}
	var req rewriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}

	rewrite, err := h.Svc.Rewrite(c.Request.Context(), userID, c.Param("id"), req.Section)
	if err != nil {
		h.renderDerivedError(c, err, "failed to rewrite section")
		return
	}
	respond.OK(c, rewrite)
}

func (h *Handler) renderDerivedError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "session not found", nil)
	case errors.Is(err, ErrNotReady):
		respond.Error(c, http.StatusBadRequest, "session_not_ready", "completed analysis with prep plan required first", nil)
	case strings.Contains(err.Error(), "validation"):
		respond.Error(c, http.StatusBadRequest, "invalid_request", trimValidation(err), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}

func trimValidation(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, "validation: "); idx >= 0 {
		return msg[idx+len("validation: "):]
	}
	return msg
}
