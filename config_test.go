package stepdiag

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig("/project")
	assert.Equal(t, "/project", cfg.ProjectRoot)
	assert.Equal(t, []string{"features/**/*.feature"}, cfg.Features)
	assert.Len(t, cfg.StepDefinitions, 3)
	assert.True(t, cfg.Suggestions.Enabled)
	assert.Equal(t, 0.72, cfg.Suggestions.Threshold)
	assert.Equal(t, 3, cfg.Suggestions.Limit)
	assert.Equal(t, ":7700", cfg.Serve.Addr)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "no feature patterns",
			mutate:  func(c *Config) { c.Features = nil },
			wantErr: ErrNoFeaturePatterns,
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Suggestions.Threshold = 1.5 },
			wantErr: ErrConfigLoadFailed,
		},
		{
			name:    "threshold below zero",
			mutate:  func(c *Config) { c.Suggestions.Threshold = -0.1 },
			wantErr: ErrConfigLoadFailed,
		},
		{
			name:    "negative limit",
			mutate:  func(c *Config) { c.Suggestions.Limit = -1 },
			wantErr: ErrConfigLoadFailed,
		},
		{
			name:    "unparseable debounce",
			mutate:  func(c *Config) { c.Watch.Debounce = "soon" },
			wantErr: ErrConfigLoadFailed,
		},
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig("/project")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWatchConfigDebounceInterval(t *testing.T) {
	t.Parallel()
	interval, err := WatchConfig{}.DebounceInterval()
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, interval)

	interval, err = WatchConfig{Debounce: "2s"}.DebounceInterval()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, interval)

	_, err = WatchConfig{Debounce: "whenever"}.DebounceInterval()
	assert.Error(t, err)

	_, err = WatchConfig{Debounce: "-1s"}.DebounceInterval()
	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	cfg, err := LoadConfig(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(root), cfg)
}

func TestLoadConfigYamlFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, "stepdiag.yaml", `
features:
  - "specs/**/*.feature"
suggestions:
  threshold: 0.5
serve:
  addr: ":8123"
`)

	cfg, err := LoadConfig(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"specs/**/*.feature"}, cfg.Features)
	assert.Equal(t, 0.5, cfg.Suggestions.Threshold)
	assert.Equal(t, ":8123", cfg.Serve.Addr)

	// Settings the file does not mention keep their defaults.
	assert.True(t, cfg.Suggestions.Enabled)
	assert.Equal(t, 3, cfg.Suggestions.Limit)
	assert.Len(t, cfg.StepDefinitions, 3)
}

func TestLoadConfigTomlFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, "stepdiag.toml", `
features = ["cukes/**/*.feature"]

[serve]
addr = ":8200"
`)

	cfg, err := LoadConfig(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cukes/**/*.feature"}, cfg.Features)
	assert.Equal(t, ":8200", cfg.Serve.Addr)
}

func TestLoadConfigDiscoveryOrder(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, "stepdiag.yaml", "features: [\"from-yaml/**/*.feature\"]\n")
	writeConfigFile(t, root, "stepdiag.toml", "features = [\"from-toml/**/*.feature\"]\n")

	cfg, err := LoadConfig(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"from-yaml/**/*.feature"}, cfg.Features)
}

func TestLoadConfigPackageManifest(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, "package.json", `{
  "name": "shop",
  "version": "1.0.0",
  "stepdiag": {
    "features": ["pkg/**/*.feature"],
    "suggestions": {"limit": 7}
  }
}`)

	cfg, err := LoadConfig(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/**/*.feature"}, cfg.Features)
	assert.Equal(t, 7, cfg.Suggestions.Limit)
}

func TestLoadConfigPackageManifestWithoutSection(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, "package.json", `{"name": "shop", "version": "1.0.0"}`)

	cfg, err := LoadConfig(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(root), cfg)
}

func TestLoadConfigExplicitFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, filepath.Join("conf", "diag.yml"), "features: [\"explicit/**/*.feature\"]\n")

	cfg, err := LoadConfig(root, filepath.Join("conf", "diag.yml"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"explicit/**/*.feature"}, cfg.Features)
}

func TestLoadConfigExplicitFileMissing(t *testing.T) {
	t.Parallel()
	_, err := LoadConfig(t.TempDir(), "nope.yaml", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigLoadFailed)
}

func TestLoadConfigUnsupportedExtension(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, "stepdiag.conf", "features = x\n")

	_, err := LoadConfig(root, "stepdiag.conf", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigLoadFailed)
	assert.Contains(t, err.Error(), "unsupported config file")
}

func TestLoadConfigMalformedFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, "stepdiag.yaml", "features: [unclosed\n")

	_, err := LoadConfig(root, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigLoadFailed)
}

func TestLoadConfigInvalidSettings(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, "stepdiag.yaml", "suggestions:\n  threshold: 2.5\n")

	_, err := LoadConfig(root, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigLoadFailed)
}

func TestLoadConfigMissingRoot(t *testing.T) {
	t.Parallel()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent"), "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProjectRootInvalid)
}

func TestLoadConfigRelativeProjectRoot(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app"), 0o755))
	writeConfigFile(t, root, "stepdiag.yaml", "projectRoot: app\n")

	cfg, err := LoadConfig(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "app"), cfg.ProjectRoot)
}

func TestLoadConfigProjectRootNotADirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, "stepdiag.yaml", "projectRoot: missing\n")

	_, err := LoadConfig(root, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProjectRootInvalid)
}

func TestLoadConfigDotEnvFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, ".env", "STEPDIAG_FEATURES=dotted/**/*.feature\nSTEPDIAG_SUGGESTIONS_LIMIT=5\n")

	cfg, err := LoadConfig(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"dotted/**/*.feature"}, cfg.Features)
	assert.Equal(t, 5, cfg.Suggestions.Limit)
}

func TestLoadConfigDotEnvOverridesFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, "stepdiag.yaml", "serve:\n  addr: \":8000\"\n")
	writeConfigFile(t, root, ".env", "STEPDIAG_SERVE_ADDR=:8100\n")

	cfg, err := LoadConfig(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, ":8100", cfg.Serve.Addr)
}

func TestLoadConfigDotEnvMalformed(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfigFile(t, root, ".env", "STEPDIAG_SERVE_ADDR\n")

	_, err := LoadConfig(root, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigLoadFailed)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	root := t.TempDir()
	t.Setenv("STEPDIAG_FEATURES", "a/**/*.feature, b/**/*.feature")
	t.Setenv("STEPDIAG_SERVE_ADDR", ":9999")
	t.Setenv("STEPDIAG_SUGGESTIONS_THRESHOLD", "0.5")
	t.Setenv("STEPDIAG_WATCH_DEBOUNCE", "1s")

	cfg, err := LoadConfig(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/**/*.feature", "b/**/*.feature"}, cfg.Features)
	assert.Equal(t, ":9999", cfg.Serve.Addr)
	assert.Equal(t, 0.5, cfg.Suggestions.Threshold)
	assert.Equal(t, "1s", cfg.Watch.Debounce)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, "stepdiag.yaml", "serve:\n  addr: \":8000\"\n")
	t.Setenv("STEPDIAG_SERVE_ADDR", ":9000")

	cfg, err := LoadConfig(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Serve.Addr)
}

func TestLoadConfigEnvOverridesDotEnv(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, ".env", "STEPDIAG_SERVE_ADDR=:8100\n")
	t.Setenv("STEPDIAG_SERVE_ADDR", ":9100")

	cfg, err := LoadConfig(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Serve.Addr)
}

func TestLoadConfigEnvInvalidValue(t *testing.T) {
	root := t.TempDir()
	t.Setenv("STEPDIAG_SUGGESTIONS_THRESHOLD", "not-a-number")

	_, err := LoadConfig(root, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigLoadFailed)
}
