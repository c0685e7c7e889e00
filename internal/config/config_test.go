package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("CHUNK_BUDGET", "")
	t.Setenv("GIGACHAT_TIMEOUT", "")

	cfg := Load()

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 30000, cfg.ChunkBudget)
	assert.Equal(t, 3, cfg.MaxFoldDepth)
	assert.Equal(t, 60*time.Second, cfg.LLM.CompletionTimeout)
	assert.Equal(t, 30*time.Second, cfg.LLM.AuthTimeout)
	assert.Equal(t, "GigaChat", cfg.LLM.Model)
}

func TestLoadLegacyCredentialNames(t *testing.T) {
	t.Setenv("GIGACHAT_CLIENT_ID", "")
	t.Setenv("GIGACHAT_CLIENT_SECRET", "")
	t.Setenv("CLIENT_ID", "legacy-id")
	t.Setenv("CLIENT_SECRET", "legacy-secret")

	cfg := Load()

	assert.Equal(t, "legacy-id", cfg.LLM.ClientID)
	assert.Equal(t, "legacy-secret", cfg.LLM.ClientSecret)

	t.Setenv("GIGACHAT_CLIENT_ID", "new-id")
	assert.Equal(t, "new-id", Load().LLM.ClientID)
}

func TestLoadParsesListsAndDurations(t *testing.T) {
	t.Setenv("RESTRICTION_PHRASES", " refused , ,not allowed")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.0/8,127.0.0.1")
	t.Setenv("GIGACHAT_TIMEOUT", "90")
	t.Setenv("SCOPE_LOCK_TTL", "2m")
	t.Setenv("CHUNK_BUDGET", "-5")

	cfg := Load()

	assert.Equal(t, []string{"refused", "not allowed"}, cfg.LLM.RestrictionPhrases)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.RateLimitWhitelist)
	assert.Equal(t, 90*time.Second, cfg.LLM.CompletionTimeout)
	assert.Equal(t, 2*time.Minute, cfg.ScopeLockTTL)
	assert.Equal(t, 30000, cfg.ChunkBudget)
}

func TestValidateServerRequiresDashboardAuthInProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DASHBOARD_PASSWORD_HASH", "")

	var cfg *Config
	require.NotPanics(t, func() { cfg = Load() })
	assert.EqualError(t, cfg.ValidateServer(), "DASHBOARD_PASSWORD_HASH is required in production")

	t.Setenv("DASHBOARD_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuu")
	assert.NoError(t, Load().ValidateServer())

	t.Setenv("ENV", "development")
	t.Setenv("DASHBOARD_PASSWORD_HASH", "")
	assert.NoError(t, Load().ValidateServer())
}
