package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.FinalModel)
	assert.Equal(t, "gemini-2.5-flash-lite", cfg.LLM.AnalysisModel)
	assert.Equal(t, 180, cfg.Segmenter.MaxSegmentLength)
	assert.Equal(t, 300, cfg.Tier.FreeMaxTextLength)
	assert.Equal(t, 2000, cfg.Tier.PaidMaxTextLength)
	require.NoError(t, cfg.Validate())
}

func TestTimeouts(t *testing.T) {
	cfg := DefaultConfig()
	// The whole-request budget and the per-call HTTP timeout are
	// independent knobs.
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 30*time.Second, cfg.CallTimeout())

	cfg.LLM.CallTimeout = "bogus"
	assert.Equal(t, 30*time.Second, cfg.CallTimeout())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9999"
segmenter:
  max_segment_length: 300
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 300, cfg.Segmenter.MaxSegmentLength)
	// Untouched keys keep defaults.
	assert.Equal(t, 30, cfg.Segmenter.RefineMinLength)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TONEBRIDGE_ADDR", ":7070")
	t.Setenv("TONEBRIDGE_FINAL_MODEL", "gemini-x")
	t.Setenv("TONEBRIDGE_FREE_MAX_TEXT_LENGTH", "500")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "gemini-x", cfg.LLM.FinalModel)
	assert.Equal(t, 500, cfg.Tier.FreeMaxTextLength)
}

func TestValidateRejectsInvertedTierLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tier.PaidMaxTextLength = 100
	assert.Error(t, cfg.Validate())
}

func TestMaxTextLength(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 300, cfg.MaxTextLength("FREE"))
	assert.Equal(t, 2000, cfg.MaxTextLength("PAID"))
	assert.Equal(t, 300, cfg.MaxTextLength(""))
}
