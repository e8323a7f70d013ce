package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, 0.75, cfg.Memory.WarningThreshold)
	assert.Equal(t, 0.90, cfg.Memory.CriticalThreshold)
	assert.Equal(t, 1200, cfg.Correction.MaxChunkChars)
	assert.Equal(t, 1, cfg.Correction.MaxParallel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLFile(t *testing.T) {
	yamlContent := `
port: 9100
data_path: /tmp/vs-data
jwt_secret: test-secret
memory:
  warning_threshold: 0.6
  critical_threshold: 0.8
correction:
  max_chunk_chars: 500
  overlap_sentences: 2
  max_parallel: 4
engine:
  correction_url: http://localhost:9999
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlContent), 0644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "/tmp/vs-data", cfg.DataPath)
	assert.Equal(t, 0.6, cfg.Memory.WarningThreshold)
	assert.Equal(t, 0.8, cfg.Memory.CriticalThreshold)
	assert.Equal(t, 500, cfg.Correction.MaxChunkChars)
	assert.Equal(t, 2, cfg.Correction.OverlapSentences)
	assert.Equal(t, 4, cfg.Correction.MaxParallel)
	assert.Equal(t, "http://localhost:9999", cfg.Engine.CorrectionURL)
	// Defaults fill unspecified fields
	assert.Equal(t, "http://127.0.0.1:8178", cfg.Engine.SpeechServerURL)
	// DBPath derives from data path when unset
	assert.Equal(t, "/tmp/vs-data/voicescribe.db", cfg.DBPath)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7001")
	t.Setenv("MEMORY_CRITICAL_THRESHOLD", "0.95")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000, http://localhost:5173")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Port)
	assert.Equal(t, 0.95, cfg.Memory.CriticalThreshold)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cfg := Default()
	cfg.Memory.WarningThreshold = 0.95
	cfg.Memory.CriticalThreshold = 0.90
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Memory.CriticalThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Correction.MaxParallel = 0
	assert.Error(t, cfg.Validate())
}
