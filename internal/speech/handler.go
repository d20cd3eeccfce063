package speech

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/shared/server/respond"
)

const maxAudioBytes = 25 << 20

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/speech/tts", h.tts)
	rg.POST("/speech/transcribe", h.transcribe)
}

type ttsBody struct {
	Text string `json:"text"`
}

func (h *Handler) tts(c *gin.Context) {
	var req ttsBody
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "text is required", nil)
		return
	}

	audio, err := h.Svc.Synthesize(c.Request.Context(), req.Text)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			respond.Error(c, http.StatusServiceUnavailable, "not_configured", "no speech provider configured", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to generate speech", nil)
		return
	}
	respond.OK(c, gin.H{"audioBase64": base64.StdEncoding.EncodeToString(audio)})
}

func (h *Handler) transcribe(c *gin.Context) {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "audio file is required", nil)
		return
	}
	if fileHeader.Size > maxAudioBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "audio exceeds the 25MB limit", nil)
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "could not read audio", nil)
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(io.LimitReader(f, maxAudioBytes+1))
	if err != nil || int64(len(audio)) > maxAudioBytes {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "could not read audio", nil)
		return
	}

	text, err := h.Svc.Transcribe(c.Request.Context(), audio, fileHeader.Filename)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			respond.Error(c, http.StatusServiceUnavailable, "not_configured", "no transcription provider configured", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to transcribe audio", nil)
		return
	}
	respond.OK(c, gin.H{"transcription": text})
}
