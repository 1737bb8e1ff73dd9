package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
app:
  name: destination-discovery
  version: 1.2.0
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: travel
    user: travel
    password: ${TEST_DB_PASSWORD}
  redis:
    address: localhost:6379
llm:
  api_key: ${TEST_GEMINI_KEY}
discovery:
  commitment_phrases: ["let's go with", "i pick"]
workers:
  discovery-chat-message:
    enabled: true
    max_jobs_active: 3
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "s3cret")
	t.Setenv("TEST_GEMINI_KEY", "gem-key")

	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Postgres.Password)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, "gem-key", cfg.LLM.APIKey)
	assert.Equal(t, DefaultLLMModel, cfg.LLM.Model)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, float64(0), cfg.LLM.Temperature)
	assert.Equal(t, DefaultIndexName, cfg.Discovery.RecommendationIndex)
	assert.Equal(t, []string{"let's go with", "i pick"}, cfg.Discovery.CommitmentPhrases)
	assert.Equal(t, DefaultHealthAddr, cfg.Server.HealthAddress)

	wc := GetWorkerConfig(cfg, "discovery-chat-message")
	assert.True(t, wc.Enabled)
	assert.Equal(t, 3, wc.MaxJobsActive)
	assert.Equal(t, defaultWorkerTimeout, wc.Timeout)
	assert.Equal(t, 3, wc.MaxRetries)
}

func TestLoadFromFile_APIKeyFallsBackToEnvironment(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "")
	t.Setenv("TEST_GEMINI_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)
	assert.Equal(t, "google-key", cfg.LLM.APIKey)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing broker",
			body:    "database:\n  postgres:\n    host: h\n    database: d\n    user: u\n  redis:\n    address: r\n",
			wantErr: "camunda.broker_address",
		},
		{
			name:    "missing redis",
			body:    "camunda:\n  broker_address: b\ndatabase:\n  postgres:\n    host: h\n    database: d\n    user: u\n",
			wantErr: "database.redis.address",
		},
		{
			name:    "sns without topic",
			body:    baseYAML + "notifications:\n  aws:\n    region: eu-west-1\n  sns:\n    enabled: true\n",
			wantErr: "topic_arn",
		},
		{
			name:    "unsupported provider",
			body:    "camunda:\n  broker_address: b\ndatabase:\n  postgres:\n    host: h\n    database: d\n    user: u\n  redis:\n    address: r\nllm:\n  provider: openai\n",
			wantErr: "llm.provider",
		},
		{
			name:    "tracing without endpoint",
			body:    baseYAML + "tracing:\n  enabled: true\n",
			wantErr: "jaeger_endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_USER", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig_Unknown(t *testing.T) {
	cfg := &Config{}
	wc := GetWorkerConfig(cfg, "unknown")
	assert.True(t, wc.Enabled)
	assert.True(t, IsWorkerEnabled(cfg, "unknown"))

	cfg.Workers = map[string]WorkerConfig{"off": {Enabled: false}}
	assert.False(t, IsWorkerEnabled(cfg, "off"))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
	assert.Equal(t, []string{"http://es:9200"}, ElasticsearchConfig{URL: "http://es:9200"}.GetAddresses())
	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=travel sslmode=disable",
		PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "travel", SSLMode: "disable"}.GetDSN(),
	)
}
