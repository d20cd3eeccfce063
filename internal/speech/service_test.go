package speech

import (
	"context"
	"errors"
	"testing"
)

type stubSynth struct {
	audio []byte
	err   error
	calls int
}

func (s *stubSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.calls++
	return s.audio, s.err
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audio []byte, fileName string) (string, error) {
	return s.text, s.err
}

func TestSynthesizeUsesPrimary(t *testing.T) {
	primary := &stubSynth{audio: []byte("mp3-primary")}
	fallback := &stubSynth{audio: []byte("mp3-fallback")}
	svc := &Service{Primary: primary, Fallback: fallback}

	audio, err := svc.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "mp3-primary" {
		t.Fatalf("audio = %q", audio)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback should not be called when primary succeeds")
	}
}

func TestSynthesizeFallsBack(t *testing.T) {
	primary := &stubSynth{err: errors.New("polly down")}
	fallback := &stubSynth{audio: []byte("mp3-fallback")}
	svc := &Service{Primary: primary, Fallback: fallback}

	audio, err := svc.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "mp3-fallback" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestSynthesizeSkipsMissingPrimary(t *testing.T) {
	fallback := &stubSynth{audio: []byte("mp3-fallback")}
	svc := &Service{Fallback: fallback}

	audio, err := svc.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "mp3-fallback" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestSynthesizeWithoutProviders(t *testing.T) {
	svc := &Service{}
	if _, err := svc.Synthesize(context.Background(), "hello"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestTranscribeRequiresAudio(t *testing.T) {
	svc := &Service{Transcriber: &stubTranscriber{text: "hi"}}
	if _, err := svc.Transcribe(context.Background(), nil, "a.webm"); err == nil {
		t.Fatal("expected error for empty audio")
	}

	text, err := svc.Transcribe(context.Background(), []byte("bytes"), "a.webm")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hi" {
		t.Fatalf("text = %q", text)
	}
}
