package stepdiag

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golobby/config/v3"

	"github.com/GoCodeAlone/stepdiag/feeders"
)

// EnvPrefix is the prefix of the environment variables that override file
// configuration, e.g. STEPDIAG_PROJECT_ROOT.
const EnvPrefix = "STEPDIAG"

// configFileNames are probed in order at the project root; the first match
// wins. When none exists, a "stepdiag" section in package.json is honored.
var configFileNames = []string{"stepdiag.yaml", "stepdiag.yml", "stepdiag.toml", "stepdiag.json"}

const (
	packageManifest = "package.json"
	manifestSection = "stepdiag"
	dotEnvFile      = ".env"

	defaultDebounce = 300 * time.Millisecond
)

// Feeder is the contract all configuration sources implement.
type Feeder = config.Feeder

// ComplexFeeder extends the basic Feeder interface with keyed section
// extraction, for settings embedded in a shared file.
type ComplexFeeder interface {
	Feeder
	FeedKey(string, interface{}) error
}

// Config holds the settings of a diagnostic run.
type Config struct {
	// ProjectRoot anchors every relative pattern and path in the report.
	ProjectRoot string `yaml:"projectRoot" toml:"projectRoot" json:"projectRoot" env:"PROJECT_ROOT"`
	// Features are the globs that discover scenario-language files.
	Features []string `yaml:"features" toml:"features" json:"features" env:"FEATURES"`
	// StepDefinitions are the step-definition search patterns, expanded per
	// feature file; [filepath] and [filepart] placeholders are supported.
	StepDefinitions []string `yaml:"stepDefinitions" toml:"stepDefinitions" json:"stepDefinitions" env:"STEP_DEFINITIONS"`

	Suggestions SuggestionsConfig `yaml:"suggestions" toml:"suggestions" json:"suggestions"`
	Watch       WatchConfig       `yaml:"watch" toml:"watch" json:"watch"`
	Serve       ServeConfig       `yaml:"serve" toml:"serve" json:"serve"`
}

// SuggestionsConfig controls the closest-expression hints attached to
// unmatched steps.
type SuggestionsConfig struct {
	Enabled   bool    `yaml:"enabled" toml:"enabled" json:"enabled" env:"SUGGESTIONS_ENABLED"`
	Threshold float64 `yaml:"threshold" toml:"threshold" json:"threshold" env:"SUGGESTIONS_THRESHOLD"`
	Limit     int     `yaml:"limit" toml:"limit" json:"limit" env:"SUGGESTIONS_LIMIT"`
}

// WatchConfig controls the filesystem watcher of watch/serve modes.
type WatchConfig struct {
	// Debounce is the quiet period after a filesystem event before a re-run
	// triggers, as a Go duration string.
	Debounce string `yaml:"debounce" toml:"debounce" json:"debounce" env:"WATCH_DEBOUNCE"`
	// Schedule optionally adds a cron polling fallback for filesystems where
	// change notification is unreliable. Empty disables it.
	Schedule string `yaml:"schedule" toml:"schedule" json:"schedule" env:"WATCH_SCHEDULE"`
}

// DebounceInterval parses the configured debounce, defaulting when unset.
func (w WatchConfig) DebounceInterval() (time.Duration, error) {
	if w.Debounce == "" {
		return defaultDebounce, nil
	}
	interval, err := time.ParseDuration(w.Debounce)
	if err != nil {
		return 0, fmt.Errorf("invalid watch debounce %q: %w", w.Debounce, err)
	}
	if interval < 0 {
		return 0, fmt.Errorf("invalid watch debounce %q: negative", w.Debounce)
	}
	return interval, nil
}

// ServeConfig controls the diagnostics HTTP server.
type ServeConfig struct {
	Addr string `yaml:"addr" toml:"addr" json:"addr" env:"SERVE_ADDR"`
}

// DefaultConfig returns the configuration used when a project provides none.
func DefaultConfig(projectRoot string) *Config {
	return &Config{
		ProjectRoot: projectRoot,
		Features:    []string{"features/**/*.feature"},
		StepDefinitions: []string{
			"features/[filepath].{js,mjs,ts}",
			"features/[filepath]/**/*.{js,mjs,ts}",
			"features/step_definitions/**/*.{js,mjs,ts}",
		},
		Suggestions: SuggestionsConfig{Enabled: true, Threshold: 0.72, Limit: 3},
		Watch:       WatchConfig{Debounce: defaultDebounce.String()},
		Serve:       ServeConfig{Addr: ":7700"},
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Features) == 0 {
		return ErrNoFeaturePatterns
	}
	if c.Suggestions.Threshold < 0 || c.Suggestions.Threshold > 1 {
		return fmt.Errorf("%w: suggestion threshold %v outside [0, 1]", ErrConfigLoadFailed, c.Suggestions.Threshold)
	}
	if c.Suggestions.Limit < 0 {
		return fmt.Errorf("%w: suggestion limit %d negative", ErrConfigLoadFailed, c.Suggestions.Limit)
	}
	if _, err := c.Watch.DebounceInterval(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigLoadFailed, err)
	}
	return nil
}

// ConfigLoader combines feeders and feed targets: whole-struct feeds for
// dedicated config files plus keyed section extraction for manifest-embedded
// settings.
type ConfigLoader struct {
	*config.Config
	sections map[string]interface{}
}

// NewConfigLoader creates an empty configuration loader.
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{
		Config:   config.New(),
		sections: make(map[string]interface{}),
	}
}

// AddSection registers a target fed from one top-level key of every
// ComplexFeeder added to the loader.
func (l *ConfigLoader) AddSection(key string, target interface{}) *ConfigLoader {
	l.sections[key] = target
	return l
}

// Feed runs all whole-struct feeds, then the registered section feeds.
func (l *ConfigLoader) Feed() error {
	if err := l.Config.Feed(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigLoadFailed, err)
	}
	for key, target := range l.sections {
		for _, f := range l.Feeders {
			cf, ok := f.(ComplexFeeder)
			if !ok {
				continue
			}
			if err := cf.FeedKey(key, target); err != nil {
				return fmt.Errorf("%w: section %q: %w", ErrConfigLoadFailed, key, err)
			}
		}
	}
	return nil
}

// LoadConfig resolves the effective configuration for projectRoot: defaults,
// then the first stepdiag config file found (or the stepdiag section of
// package.json), then STEPDIAG_* variables from a .env file at the root,
// then STEPDIAG_* process environment overrides. A non-empty configFile
// bypasses discovery.
func LoadConfig(projectRoot, configFile string, log Logger) (*Config, error) {
	if log == nil {
		log = NoopLogger{}
	}
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProjectRootInvalid, err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrProjectRootInvalid, root)
	}
	cfg := DefaultConfig(root)

	loader := NewConfigLoader()
	file, manifest, err := discoverConfigSource(root, configFile)
	if err != nil {
		return nil, err
	}
	switch {
	case file != "":
		fileFeeder, err := feederFor(file)
		if err != nil {
			return nil, err
		}
		loader.AddFeeder(fileFeeder)
		loader.AddStruct(cfg)
		log.Debug("loading configuration file", "path", file)
	case manifest != "":
		loader.AddFeeder(feeders.NewJSONFeeder(manifest))
		loader.AddSection(manifestSection, cfg)
		log.Debug("loading configuration from manifest", "path", manifest, "section", manifestSection)
	default:
		log.Debug("no configuration file found, using defaults")
	}
	if err := loader.Feed(); err != nil {
		return nil, err
	}
	if path := filepath.Join(root, dotEnvFile); fileExists(path) {
		if err := feeders.NewDotEnvFeeder(path, EnvPrefix).Feed(cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigLoadFailed, err)
		}
		log.Debug("loading overrides from .env file", "path", path)
	}
	if err := feeders.NewPrefixEnvFeeder(EnvPrefix).Feed(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigLoadFailed, err)
	}

	if !filepath.IsAbs(cfg.ProjectRoot) {
		cfg.ProjectRoot = filepath.Join(root, cfg.ProjectRoot)
	}
	if cfg.ProjectRoot != root {
		if info, err := os.Stat(cfg.ProjectRoot); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrProjectRootInvalid, cfg.ProjectRoot)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// discoverConfigSource locates the configuration source for root: the
// explicit file when given, else the first well-known config file, else the
// project manifest.
func discoverConfigSource(root, explicit string) (file, manifest string, err error) {
	if explicit != "" {
		path := explicit
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		if _, err := os.Stat(path); err != nil {
			return "", "", fmt.Errorf("%w: %w", ErrConfigLoadFailed, err)
		}
		return path, "", nil
	}
	for _, name := range configFileNames {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			return path, "", nil
		}
	}
	path := filepath.Join(root, packageManifest)
	if _, err := os.Stat(path); err == nil {
		return "", path, nil
	}
	return "", "", nil
}

func feederFor(path string) (Feeder, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return feeders.NewYamlFeeder(path), nil
	case ".toml":
		return feeders.NewTomlFeeder(path), nil
	case ".json":
		return feeders.NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: unsupported config file %q", ErrConfigLoadFailed, path)
	}
}
