package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Game.TickRate)
	assert.Equal(t, 33, cfg.Arena.Size)
	assert.Equal(t, 15*time.Second, cfg.Game.RespawnDelay)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("TICK_RATE", "20")
	t.Setenv("RESPAWN_DELAY", "3s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SECRET_KEY", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Game.TickRate)
	assert.Equal(t, 3*time.Second, cfg.Game.RespawnDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "s3cret", cfg.Auth.SecretKey)
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	doc := `
game:
  active_timeout: 2m
  kill_score: 250
arena:
  size: 41
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("ARENA_SIZE", "45")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Game.ActiveTimeout)
	assert.Equal(t, 250, cfg.Game.KillScore)
	// untouched keys keep their defaults
	assert.Equal(t, 20, cfg.Game.BulletDamage)
	// env wins over the file
	assert.Equal(t, 45, cfg.Arena.Size)
}

func TestValidateRejectsBadStore(t *testing.T) {
	tests := []struct {
		name  string
		store StoreConfig
	}{
		{"unknown driver", StoreConfig{Driver: "mongo"}},
		{"postgres without dsn", StoreConfig{Driver: StorePostgres}},
		{"redis without addr", StoreConfig{Driver: StoreRedis}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Store = tt.store
			assert.Error(t, cfg.Validate())
		})
	}
}
