package llm

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"

	"destination-discovery/internal/common/config"
	"destination-discovery/internal/common/errors"
	"destination-discovery/internal/common/logger"
)

func newTestGateway(t *testing.T, retries int, gen generateFunc) *GeminiGateway {
	g := newGateway(config.LLMConfig{Model: "gemini-2.0-flash", Timeout: 1000, MaxRetries: retries}, gen, logger.NewTestLogger(t))
	g.backoff = time.Millisecond
	return g
}

func TestGenerate_Success(t *testing.T) {
	var gotSystem, gotUser string
	g := newTestGateway(t, 2, func(_ context.Context, system, user string) (string, error) {
		gotSystem, gotUser = system, user
		return "1. Budget?", nil
	})

	text, err := g.Generate(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, "1. Budget?", text)
	assert.Equal(t, "sys", gotSystem)
	assert.Equal(t, "usr", gotUser)
}

func TestGenerate_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	g := newTestGateway(t, 2, func(context.Context, string, string) (string, error) {
		calls++
		if calls < 3 {
			return "", stderrors.New("503 unavailable")
		}
		return "ok", nil
	})

	text, err := g.Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, calls)
}

func TestGenerate_ExhaustedRetries(t *testing.T) {
	calls := 0
	cause := stderrors.New("500 internal")
	g := newTestGateway(t, 1, func(context.Context, string, string) (string, error) {
		calls++
		return "", cause
	})

	_, err := g.Generate(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, errors.HasCode(err, errors.ErrCodeLLMGatewayFailed))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 2, errors.AsStandardError(err).Metadata["attempts"])
}

func TestGenerate_Timeout(t *testing.T) {
	g := newTestGateway(t, 0, func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	g.timeout = 10 * time.Millisecond

	_, err := g.Generate(context.Background(), "s", "u")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeLLMTimeout))
}

func TestGenerate_CallerCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	g := newTestGateway(t, 5, func(context.Context, string, string) (string, error) {
		calls++
		cancel()
		return "", stderrors.New("boom")
	})

	_, err := g.Generate(ctx, "s", "u")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, errors.AsStandardError(err).Metadata["attempts"])
}

func TestGenerate_CancelReportsAttemptsMade(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	g := newTestGateway(t, 5, func(context.Context, string, string) (string, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return "", stderrors.New("503 unavailable")
	})

	_, err := g.Generate(ctx, "s", "u")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, errors.HasCode(err, errors.ErrCodeLLMGatewayFailed))
	assert.Equal(t, 2, errors.AsStandardError(err).Metadata["attempts"])
}

func TestResponseText(t *testing.T) {
	_, err := responseText(nil)
	assert.ErrorIs(t, err, errEmptyResponse)

	_, err = responseText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}})
	assert.ErrorIs(t, err, errEmptyResponse)

	text, err := responseText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: "1. Lima, Peru"}, {Text: "\nCeviche."}}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, "1. Lima, Peru\nCeviche.", text)
}
