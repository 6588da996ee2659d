package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	providerHTTP  = "http"
	gradePath     = "/api/grade"
	maxReplyBytes = 4 << 20
)

// HTTPConfig configures the remote grading service client.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	// Retries is the number of transport-level retries for 429/5xx replies
	// and connection failures.
	Retries int
	Timeout time.Duration
	Logger  zerolog.Logger
}

// HTTPGrader posts files to a grading service as multipart form data.
type HTTPGrader struct {
	client   *retryablehttp.Client
	endpoint string
	apiKey   string
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// NewHTTPGrader builds a grader talking to cfg.BaseURL.
func NewHTTPGrader(cfg HTTPConfig) (*HTTPGrader, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("grading service base url is required")
	}

	client := NewRetryableClient(cfg.Retries, cfg.Timeout)
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	// Hand the last response back so the error envelope can be read.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTPGrader{
		client:   client,
		endpoint: strings.TrimRight(base, "/") + gradePath,
		apiKey:   cfg.APIKey,
		tracer:   otel.Tracer("github.com/noah-isme/autograde-api/pkg/grader/http"),
		logger:   cfg.Logger.With().Str("component", "http_grader").Logger(),
	}, nil
}

// NewRetryableClient returns a quiet retrying HTTP client shared by the
// grading providers.
func NewRetryableClient(retries int, timeout time.Duration) *retryablehttp.Client {
	if retries < 0 {
		retries = 0
	}
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	if timeout > 0 {
		client.HTTPClient.Timeout = timeout
	}
	return client
}

// Grade uploads one file with its criteria and returns the raw reply for that file.
func (g *HTTPGrader) Grade(parent context.Context, req Request) (json.RawMessage, error) {
	ctx, span := g.tracer.Start(parent, "grader.http.grade", trace.WithAttributes(
		attribute.String("file_name", req.FileName),
		attribute.String("submission_id", req.SubmissionID),
	))
	defer span.End()

	start := time.Now()
	reply, err := g.grade(ctx, req)
	gradeDuration.WithLabelValues(providerHTTP).Observe(time.Since(start).Seconds())
	if err != nil {
		gradeFailures.WithLabelValues(providerHTTP, failureReason(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return reply, nil
}

func (g *HTTPGrader) grade(ctx context.Context, req Request) (json.RawMessage, error) {
	body, contentType, err := buildMultipart(req)
	if err != nil {
		return nil, fmt.Errorf("build grading request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build grading request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("grading request: %w", ctxErr)
		}
		return nil, fmt.Errorf("grading request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read grading reply: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, envelopeMessage(payload, resp.Status))
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    envelopeMessage(payload, resp.Status),
			retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError,
		}
	}

	reply, err := extractReply(payload, req.FileName)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		g.logger.Debug().Str("file_name", req.FileName).Msg("grading service returned no entry for file")
	}
	return reply, nil
}

func buildMultipart(req Request) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, req.FileName))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Content); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"gradingCriteria":      req.Criteria,
		"submissionId":         req.SubmissionID,
		"totalPointsAvailable": strconv.FormatFloat(req.TotalPoints, 'f', -1, 64),
	}
	for _, name := range []string{"gradingCriteria", "submissionId", "totalPointsAvailable"} {
		if err := writer.WriteField(name, fields[name]); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// extractReply picks the entry for fileName out of the service reply. A reply
// that is not JSON is returned untouched so Coerce can degrade it.
func extractReply(payload []byte, fileName string) (json.RawMessage, error) {
	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return json.RawMessage(payload), nil
	}

	if obj, ok := doc.(map[string]interface{}); ok {
		if failed, _ := obj["error"].(bool); failed {
			message, _ := obj["message"].(string)
			if message == "" {
				message = "grading failed"
			}
			return nil, &ServiceError{Message: message}
		}
		if data, ok := obj["data"]; ok {
			if _, hasResults := obj["results"]; !hasResults {
				doc = data
			}
		}
	}

	if list, ok := doc.([]interface{}); ok {
		if len(list) == 0 {
			return nil, nil
		}
		selected := list[0]
		for _, item := range list {
			entry, _ := item.(map[string]interface{})
			if name, _ := entry["fileName"].(string); name == fileName {
				selected = item
				break
			}
		}
		doc = selected
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Join(ErrMalformedReply, err)
	}
	return encoded, nil
}

func envelopeMessage(payload []byte, fallback string) string {
	var envelope struct {
		Error   interface{} `json:"error"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if s, ok := envelope.Error.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
