package provider_service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/polly"
	"github.com/aws/aws-sdk-go/service/polly/pollyiface"
	"github.com/serisow/craftvid/failure"
)

const pollyName = "aws_polly"

// PollyOptions are the synthesis parameters not carried by the request.
type PollyOptions struct {
	OutputFormat string
	SampleRate   string
	Engine       string
}

var defaultPollyOptions = PollyOptions{
	OutputFormat: "mp3",
	SampleRate:   "22050",
	Engine:       "standard",
}

type AWSPollyService struct {
	logger     *slog.Logger
	client     pollyiface.PollyAPI
	configured bool
	options    PollyOptions
}

func NewAWSPollyService(logger *slog.Logger, accessKeyID, secret, region string) (*AWSPollyService, error) {
	s := &AWSPollyService{
		logger:     logger,
		configured: accessKeyID != "" && secret != "",
		options:    defaultPollyOptions,
	}
	if !s.configured {
		return s, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKeyID, secret, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	s.client = polly.New(sess)
	return s, nil
}

// NewAWSPollyServiceWithClient wraps an existing Polly client.
func NewAWSPollyServiceWithClient(logger *slog.Logger, client pollyiface.PollyAPI) *AWSPollyService {
	return &AWSPollyService{
		logger:     logger,
		client:     client,
		configured: client != nil,
		options:    defaultPollyOptions,
	}
}

func (s *AWSPollyService) Configured() bool {
	return s.configured
}

func (s *AWSPollyService) Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	if !s.configured {
		return nil, failure.Provider(pollyName, fmt.Errorf("AWS credentials are not configured"))
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, failure.Provider(pollyName, fmt.Errorf("narration text is empty"))
	}
	voiceID := req.Voice.ID
	if voiceID == "" {
		voiceID = "Joanna"
	}

	input := &polly.SynthesizeSpeechInput{
		Text:         aws.String(req.Text),
		OutputFormat: aws.String(s.options.OutputFormat),
		VoiceId:      aws.String(voiceID),
		Engine:       aws.String(s.options.Engine),
		SampleRate:   aws.String(s.options.SampleRate),
	}

	output, err := s.client.SynthesizeSpeechWithContext(ctx, input)
	if err != nil {
		s.logger.Error("AWS Polly SynthesizeSpeech failed",
			slog.String("voice_id", voiceID),
			slog.String("error", err.Error()))
		return nil, classifyAWS(err)
	}
	defer output.AudioStream.Close()

	audio, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return nil, failure.Provider(pollyName, fmt.Errorf("failed to read audio stream: %w", err))
	}

	chars := len([]rune(req.Text))
	mimeType := "audio/" + s.options.OutputFormat
	if output.ContentType != nil {
		mimeType = *output.ContentType
	}
	return &SpeechResult{
		Audio:          audio,
		MimeType:       mimeType,
		Extension:      s.options.OutputFormat,
		CharacterCount: chars,
		Cost:           speechCost(chars),
	}, nil
}

func classifyAWS(err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case "ThrottlingException", "TooManyRequestsException":
			return failure.RateLimited(pollyName, 0, err)
		}
	}
	return failure.Provider(pollyName, err)
}
