package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const providerOpenAI = "openai"

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// OpenAIConfig defines configuration options for the OpenAI grader.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	// PollInterval is the wait between status checks of a PDF grading run.
	PollInterval time.Duration
	Retries int
	Timeout time.Duration
	Logger  zerolog.Logger
}

// OpenAIGrader grades text and audio submissions with the chat completion API.
// Audio is transcribed with Whisper first. PDFs go through the assistants API
// with file search.
type OpenAIGrader struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGrader builds a grader using the provided configuration.
func NewOpenAIGrader(cfg OpenAIConfig) (*OpenAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	config.HTTPClient = NewRetryableClient(cfg.Retries, cfg.Timeout).StandardClient()

	return &OpenAIGrader{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/autograde-api/pkg/grader/openai"),
		logger: cfg.Logger.With().Str("component", "openai_grader").Logger(),
	}, nil
}

// Grade sends the submission to OpenAI and returns the model's JSON reply.
func (g *OpenAIGrader) Grade(parent context.Context, req Request) (json.RawMessage, error) {
	ctx, span := g.tracer.Start(parent, "grader.openai.grade", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.String("file_name", req.FileName),
	))
	defer span.End()

	start := time.Now()
	reply, err := g.grade(ctx, req)
	gradeDuration.WithLabelValues(providerOpenAI).Observe(time.Since(start).Seconds())
	if err != nil {
		gradeFailures.WithLabelValues(providerOpenAI, failureReason(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return reply, nil
}

func (g *OpenAIGrader) grade(ctx context.Context, req Request) (json.RawMessage, error) {
	if mediaTypeOf(req.ContentType) == "application/pdf" {
		return g.gradeDocument(ctx, req)
	}

	text, err := g.submissionText(ctx, req)
	if err != nil {
		return nil, err
	}

	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: graderSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildGradingPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := g.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ServiceError{Message: "no choices returned from openai", retryable: true}
	}

	g.logger.Debug().
		Str("file_name", req.FileName).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("openai grading completed")

	return json.RawMessage(stripCodeFence(resp.Choices[0].Message.Content)), nil
}

func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

func (g *OpenAIGrader) submissionText(ctx context.Context, req Request) (string, error) {
	mediaType := mediaTypeOf(req.ContentType)

	switch {
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
		if strings.TrimSpace(string(req.Content)) == "" {
			return "[Content could not be extracted]", nil
		}
		return string(req.Content), nil
	case strings.HasPrefix(mediaType, "audio/"):
		resp, err := g.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    openai.Whisper1,
			FilePath: req.FileName,
			Reader:   bytes.NewReader(req.Content),
		})
		if err != nil {
			return "", fmt.Errorf("transcribe %s: %w", req.FileName, classifyOpenAIError(err))
		}
		return resp.Text, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, req.ContentType)
	}
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
		case apiErr.HTTPStatusCode >= 400:
			return &ServiceError{
				StatusCode: apiErr.HTTPStatusCode,
				Message:    apiErr.Message,
				retryable:  apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500,
			}
		}
	}
	return fmt.Errorf("openai grade: %w", err)
}

func graderSystemPrompt() string {
	return "You are an expert grader. Grade submissions based on the provided grading criteria and return the results " +
		"in the specified JSON format. Your response must be valid JSON without any Markdown formatting. Return only a raw JSON object."
}

func buildGradingPrompt(req Request) string {
	builder := strings.Builder{}
	builder.WriteString("Please grade the following submission based on these grading criteria:\n\n")
	builder.WriteString(req.Criteria)
	builder.WriteString("\n\nTOTAL_POINTS_AVAILABLE: ")
	builder.WriteString(strconv.FormatFloat(req.TotalPoints, 'f', -1, 64))
	builder.WriteString("\n\nFILE_NAME: ")
	builder.WriteString(req.FileName)
	builder.WriteString("\n\nProvide your grading in the following JSON format:\n")
	builder.WriteString(`{"results":[{"question":"Question or aspect being graded","mistakes":["List of mistakes found"],"score":0,"feedback":"Detailed feedback for this aspect"}],"totalScore":0,"overallFeedback":"Overall feedback for the entire submission"}`)
	builder.WriteString("\nThe submission follows in the next message.")
	return builder.String()
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if match := codeFence.FindStringSubmatch(content); match != nil {
		return match[1]
	}
	return content
}
