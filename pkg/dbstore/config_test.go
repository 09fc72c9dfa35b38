package dbstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t, "dispatch", cfg.Database)
	assert.Equal(t, 25, cfg.MaxOpenConns)
}

func TestLoadConfigRequiresPassword(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	_, err := LoadConfigFromEnv()
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	base := Config{Password: "x", MaxOpenConns: 10, MaxIdleConns: 5}
	assert.NoError(t, base.Validate())

	idleOverOpen := base
	idleOverOpen.MaxIdleConns = 20
	assert.Error(t, idleOverOpen.Validate())

	noOpen := base
	noOpen.MaxOpenConns = 0
	assert.Error(t, noOpen.Validate())
}
