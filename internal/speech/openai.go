package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	openAITTSURL = "https://api.openai.com/v1/audio/speech"
	openAISTTURL = "https://api.openai.com/v1/audio/transcriptions"
)

// OpenAISpeech provides tts-1 synthesis with the "nova" voice and whisper-1
// transcription against the OpenAI audio APIs.
type OpenAISpeech struct {
	apiKey     string
	httpClient *http.Client
}

// NewOpenAISpeech constructs an OpenAI-backed speech client.
func NewOpenAISpeech(apiKey string) (*OpenAISpeech, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", ErrNotConfigured)
	}
	return &OpenAISpeech{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type ttsRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

func (s *OpenAISpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(ttsRequest{
		Model:          "tts-1",
		Voice:          "nova",
		Input:          text,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAITTSURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, fmt.Errorf("openai tts status %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

func (s *OpenAISpeech) Transcribe(ctx context.Context, audio []byte, fileName string) (string, error) {
	if fileName == "" {
		fileName = "audio.webm"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := writer.WriteField("model", "whisper-1"); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAISTTURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai stt request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return "", fmt.Errorf("openai stt status %d: %s", resp.StatusCode, string(body))
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode stt response: %w", err)
	}
	return decoded.Text, nil
}

var (
	_ Synthesizer = (*OpenAISpeech)(nil)
	_ Transcriber = (*OpenAISpeech)(nil)
)
