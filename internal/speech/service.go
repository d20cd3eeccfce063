package speech

import (
	"context"
	"errors"

	"interview-backend/internal/shared/telemetry"
)

// Service wires the primary and fallback speech providers together.
type Service struct {
	Primary     Synthesizer
	Fallback    Synthesizer
	Transcriber Transcriber
}

// Synthesize tries the primary voice first and falls back when it fails.
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("text is required")
	}
	if s.Primary != nil {
		audio, err := s.Primary.Synthesize(ctx, text)
		if err == nil {
			return audio, nil
		}
		telemetry.Warn("speech.primary_failed", map[string]any{
			"error": err.Error(),
		})
	}
	if s.Fallback == nil {
		return nil, ErrNotConfigured
	}
	return s.Fallback.Synthesize(ctx, text)
}

// Transcribe converts audio into text.
func (s *Service) Transcribe(ctx context.Context, audio []byte, fileName string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("audio is required")
	}
	if s.Transcriber == nil {
		return "", ErrNotConfigured
	}
	return s.Transcriber.Transcribe(ctx, audio, fileName)
}
