// Package llm implements the discovery text gateway on top of Gemini.
package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	genai "google.golang.org/genai"

	"destination-discovery/internal/common/config"
	"destination-discovery/internal/common/errors"
	"destination-discovery/internal/common/logger"
	"destination-discovery/internal/common/metrics"
	"destination-discovery/internal/common/observability"
)

const (
	defaultTimeout = 30 * time.Second
	baseBackoff    = 200 * time.Millisecond
)

var errEmptyResponse = stderrors.New("gemini returned no text")

type generateFunc func(ctx context.Context, system, user string) (string, error)

// GeminiGateway sends one system instruction and one user prompt per call and
// retries failed calls with exponential backoff. Errors are returned as
// LLM_TIMEOUT or LLM_GATEWAY_FAILED standard errors.
type GeminiGateway struct {
	model      string
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	generate   generateFunc
	logger     logger.Logger
}

func NewGeminiGateway(ctx context.Context, cfg config.LLMConfig, log logger.Logger) (*GeminiGateway, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	temperature := float32(cfg.Temperature)
	gen := func(ctx context.Context, system, user string) (string, error) {
		resp, err := cli.Models.GenerateContent(ctx, cfg.Model,
			[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: user}}}},
			&genai.GenerateContentConfig{
				SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
				Temperature:       genai.Ptr(temperature),
			},
		)
		if err != nil {
			return "", err
		}
		return responseText(resp)
	}
	return newGateway(cfg, gen, log), nil
}

func newGateway(cfg config.LLMConfig, gen generateFunc, log logger.Logger) *GeminiGateway {
	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GeminiGateway{
		model:      cfg.Model,
		timeout:    timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    baseBackoff,
		generate:   gen,
		logger:     log.WithFields(map[string]interface{}{"model": cfg.Model}),
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyResponse
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errEmptyResponse
	}
	return b.String(), nil
}

func (g *GeminiGateway) Generate(ctx context.Context, system, user string) (string, error) {
	ctx, span := observability.StartSpan(ctx, "llm.generate", attribute.String("llm.model", g.model))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.GatewayLatency.WithLabelValues(g.model).Observe(time.Since(start).Seconds())
	}()

	var (
		lastErr  error
		attempts int
	)
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				return "", g.fail(span, lastErr, attempt)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		text, err := g.generate(callCtx, system, user)
		cancel()
		attempts = attempt + 1
		if err == nil {
			metrics.GatewayCalls.WithLabelValues(g.model, "success").Inc()
			span.SetAttributes(attribute.Int("llm.attempts", attempts))
			return text, nil
		}

		lastErr = err
		g.logger.Warn("gemini call failed", map[string]interface{}{
			"attempt": attempts,
			"error":   err.Error(),
		})
		if ctx.Err() != nil {
			break
		}
	}
	return "", g.fail(span, lastErr, attempts)
}

func (g *GeminiGateway) fail(span trace.Span, err error, attempts int) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if stderrors.Is(err, context.DeadlineExceeded) {
		metrics.GatewayCalls.WithLabelValues(g.model, "timeout").Inc()
		return errors.NewLLMTimeoutError(err).WithMetadata("attempts", attempts)
	}
	metrics.GatewayCalls.WithLabelValues(g.model, "error").Inc()
	return errors.NewLLMGatewayFailedError(err).WithMetadata("attempts", attempts)
}
