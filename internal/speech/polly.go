package speech

import (
	"context"
	"errors"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
)

// PollySynthesizer uses the neural "Kajal" en-IN voice.
type PollySynthesizer struct {
	client *polly.Client
}

// NewPollySynthesizer constructs a Polly-backed synthesizer in the given
// region. Credentials come from the default AWS chain.
func NewPollySynthesizer(ctx context.Context, region string) (*PollySynthesizer, error) {
	if region == "" {
		return nil, fmt.Errorf("%w: AWS region is required for Polly", ErrNotConfigured)
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &PollySynthesizer{client: polly.NewFromConfig(cfg)}, nil
}

func (s *PollySynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	out, err := s.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         &text,
		OutputFormat: types.OutputFormatMp3,
		VoiceId:      types.VoiceIdKajal,
		Engine:       types.EngineNeural,
		LanguageCode: types.LanguageCodeEnIn,
	})
	if err != nil {
		return nil, fmt.Errorf("polly synthesize: %w", err)
	}
	if out.AudioStream == nil {
		return nil, errors.New("polly response missing audio stream")
	}
	defer out.AudioStream.Close()
	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("read polly audio: %w", err)
	}
	return audio, nil
}

var _ Synthesizer = (*PollySynthesizer)(nil)
