// Package speech converts interview turns between text and audio. Synthesis
// prefers AWS Polly and falls back to OpenAI TTS; transcription uses Whisper.
package speech

import (
	"context"
	"errors"
)

// Synthesizer turns text into audio bytes (mp3).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, fileName string) (string, error)
}

var ErrNotConfigured = errors.New("speech provider not configured")
