package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ContractStaged, cfg.Upstream.Contract)
	assert.Equal(t, ProviderBackend, cfg.Upstream.Provider)
	assert.Equal(t, 20, cfg.Upstream.TopK)
	assert.Equal(t, "chatbot_init_data", cfg.Cache.Key)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, cfg.Cache.RetryDelays)
	assert.Equal(t, []string{"car", "backpack"}, cfg.Cache.DefaultCategories)
	assert.Equal(t, ":8080", cfg.Address())
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ASSISTANT_SERVER_PORT", "9090")
	t.Setenv("ASSISTANT_UPSTREAM_CONTRACT", "nested")
	t.Setenv("ASSISTANT_CACHE_TTL", "30m")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, ContractNested, cfg.Upstream.Contract)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "custom.yaml")
	body := "upstream:\n  base_url: http://shop.internal\n  provider: openai\nllm:\n  model: gpt-4o\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://shop.internal", cfg.Upstream.BaseURL)
	assert.Equal(t, ProviderOpenAI, cfg.Upstream.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Contains(t, cfg.Warnings(), "llm.api_key is not set; chat calls will fail until provided")
}

func TestValidateRejectsUnknownContract(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ASSISTANT_UPSTREAM_CONTRACT", "products")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream.contract")
}

func TestValidateRedisNeedsURL(t *testing.T) {
	cfg := Config{
		Upstream: UpstreamConfig{Contract: ContractStaged, Provider: ProviderBackend},
		Cache:    CacheConfig{Driver: "redis"},
	}
	require.Error(t, cfg.Validate())

	cfg.Cache.RedisURL = "redis://localhost:6379/0"
	require.NoError(t, cfg.Validate())
}

// chdir switches the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
