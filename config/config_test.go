package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	unsetEnv(t, "SERVER_PORT", "PAGE_AGENT_TIMEOUT", "AGENT_TRANSPORT", "LOCAL_SERVER_URL",
		"USE_LOCAL_SERVER", "API_PROVIDER", "COMPANION_LANGUAGES")
	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 15*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, TransportLocal, cfg.Agent.Transport)
	assert.Equal(t, "http://127.0.0.1:5000", cfg.Sources.LocalServerURL)
	assert.True(t, cfg.Sources.UseLocalServer)
	assert.Equal(t, ProviderAnthropic, cfg.Summary.Provider)
	assert.Equal(t, []string{"en", "zh-CN", "zh-Hans", "zh-TW", "ja", "ko"}, cfg.Companion.Languages)
	require.NoError(t, ValidateConfig(cfg))
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PAGE_AGENT_TIMEOUT", "3s")
	t.Setenv("USE_LOCAL_SERVER", "false")
	t.Setenv("API_PROVIDER", "glm")
	t.Setenv("GLM_API_KEY", "id.secret")
	t.Setenv("COMPANION_LANGUAGES", "ja, ko ,")

	cfg := LoadConfig()

	assert.Equal(t, 3*time.Second, cfg.Agent.Timeout)
	assert.False(t, cfg.Sources.UseLocalServer)
	assert.Equal(t, "id.secret", cfg.Summary.APIKey())
	assert.Equal(t, "glm-4-flash", cfg.Summary.Model())
	assert.Equal(t, []string{"ja", "ko"}, cfg.Companion.Languages)
}

func TestLegacyAnthropicKeys(t *testing.T) {
	unsetEnv(t, "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "API_PROVIDER")
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("MODEL", "legacy-model")

	cfg := LoadConfig()

	assert.Equal(t, "legacy-key", cfg.Summary.APIKey())
	assert.Equal(t, "legacy-model", cfg.Summary.Model())
}

func TestNewKeysWinOverLegacy(t *testing.T) {
	unsetEnv(t, "API_PROVIDER")
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("ANTHROPIC_API_KEY", "current-key")

	assert.Equal(t, "current-key", LoadConfig().Summary.APIKey())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("READ_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT", "many")
	t.Setenv("DEBUG", "maybe")

	cfg := LoadConfig()

	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 5, cfg.RateLimit)
	assert.False(t, cfg.Debug)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing port", func(c *Config) { c.ServerPort = "" }},
		{"missing db", func(c *Config) { c.DBPath = "" }},
		{"zero agent timeout", func(c *Config) { c.Agent.Timeout = 0 }},
		{"unknown transport", func(c *Config) { c.Agent.Transport = "carrier-pigeon" }},
		{"unknown provider", func(c *Config) { c.Summary.Provider = "oracle" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			tt.mutate(cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}

// unsetEnv clears keys for the duration of the test so values exported by
// the surrounding shell cannot leak in.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}
