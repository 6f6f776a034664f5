// Package config provides configuration management for Context Compass.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (COMPASS_*)
// 3. Project config (.compass/config.yaml in cwd, or $COMPASS_CONFIG)
// 4. Home config (~/.compass/config.yaml)
// 5. Defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/boshu2/contextcompass/internal/history"
	"github.com/boshu2/contextcompass/internal/sessions"
	"github.com/boshu2/contextcompass/internal/usage"
)

// ErrInvalidValue is returned when a configured value is out of range or
// cannot be parsed.
var ErrInvalidValue = errors.New("invalid config value")

// Config holds all Context Compass configuration.
type Config struct {
	// Output controls the default output format (table, json).
	Output string `yaml:"output" json:"output"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Paths settings for files the commands read and write.
	Paths PathsConfig `yaml:"paths" json:"paths"`

	// Scan settings for transcript discovery.
	Scan ScanConfig `yaml:"scan" json:"scan"`

	// Gauge settings for usage estimation.
	Gauge GaugeConfig `yaml:"gauge" json:"gauge"`

	// Server settings.
	Server ServerConfig `yaml:"server" json:"server"`

	// History settings for token history and usage analytics.
	History HistoryConfig `yaml:"history" json:"history"`
}

// PathsConfig holds configurable file locations.
type PathsConfig struct {
	// TranscriptsDir is scanned for conversation transcripts.
	// Default: $USERPROFILE/.gemini/antigravity/conversations
	TranscriptsDir string `yaml:"transcripts_dir" json:"transcripts_dir"`

	// SnapshotFile receives the output of `compass scan`.
	// Default: ~/.compass/active-session.json
	SnapshotFile string `yaml:"snapshot_file" json:"snapshot_file"`

	// StaticDir is served by `compass serve`. Empty serves the API only.
	StaticDir string `yaml:"static_dir" json:"static_dir"`

	// StateFile persists widget input between runs.
	// Default: ~/.compass/state.json
	StateFile string `yaml:"state_file" json:"state_file"`

	// HistoryFile holds per-session token history and usage totals.
	// Default: ~/.compass/history.json
	HistoryFile string `yaml:"history_file" json:"history_file"`
}

// ScanConfig holds transcript discovery settings.
type ScanConfig struct {
	Extension     string  `yaml:"extension" json:"extension"`
	TempMarker    string  `yaml:"temp_marker" json:"temp_marker"`
	BytesPerToken float64 `yaml:"bytes_per_token" json:"bytes_per_token"`
	RecentLimit   int     `yaml:"recent_limit" json:"recent_limit"`
}

// GaugeConfig holds usage estimation settings.
type GaugeConfig struct {
	// ContextWindow is the window size used when Model is empty or unknown.
	ContextWindow int `yaml:"context_window" json:"context_window"`

	// TranscriptDivisor scales transcript token estimates to model tokens.
	TranscriptDivisor int `yaml:"transcript_divisor" json:"transcript_divisor"`

	// Model names a preset whose window overrides ContextWindow.
	Model string `yaml:"model" json:"model"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	// Addr is the listen address for `compass serve` and the address the
	// widget polls.
	Addr string `yaml:"addr" json:"addr"`
}

// HistoryConfig holds token history settings.
type HistoryConfig struct {
	// Project labels recorded usage. Empty uses the working directory name.
	Project string `yaml:"project" json:"project"`

	// MaxPoints caps the points kept per session.
	MaxPoints int `yaml:"max_points" json:"max_points"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput = "table"
	defaultAddr   = "127.0.0.1:3847"
)

// OutputFormats lists the accepted Output values.
var OutputFormats = []string{"table", "json"}

// Default returns the default configuration.
func Default() *Config {
	dataDir := DataDir()
	return &Config{
		Output:  defaultOutput,
		Verbose: false,
		Paths: PathsConfig{
			TranscriptsDir: sessions.DefaultDir(),
			SnapshotFile:   filepath.Join(dataDir, "active-session.json"),
			StateFile:      filepath.Join(dataDir, "state.json"),
			HistoryFile:    filepath.Join(dataDir, "history.json"),
		},
		Scan: ScanConfig{
			Extension:     sessions.DefaultExtension,
			TempMarker:    sessions.DefaultTempMarker,
			BytesPerToken: sessions.DefaultBytesPerToken,
			RecentLimit:   sessions.DefaultRecentLimit,
		},
		Gauge: GaugeConfig{
			ContextWindow:     usage.DefaultContextWindow,
			TranscriptDivisor: usage.DefaultTranscriptDivisor,
		},
		Server: ServerConfig{
			Addr: defaultAddr,
		},
		History: HistoryConfig{
			MaxPoints: history.DefaultMaxPoints,
		},
	}
}

// DataDir is ~/.compass, or .compass when the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".compass"
	}
	return filepath.Join(home, ".compass")
}

// Window returns the effective context window: the Model preset when it names
// one, otherwise ContextWindow.
func (c *Config) Window() int {
	if m, ok := usage.LookupModel(c.Gauge.Model); ok {
		return m.ContextWindow
	}
	return c.Gauge.ContextWindow
}

// Validate reports the first out-of-range value.
func (c *Config) Validate() error {
	if !isOutputFormat(c.Output) {
		return fmt.Errorf("%w: output %q (want one of %s)", ErrInvalidValue, c.Output, strings.Join(OutputFormats, ", "))
	}
	if c.Gauge.ContextWindow <= 0 {
		return fmt.Errorf("%w: gauge.context_window must be positive, got %d", ErrInvalidValue, c.Gauge.ContextWindow)
	}
	if c.Gauge.TranscriptDivisor <= 0 {
		return fmt.Errorf("%w: gauge.transcript_divisor must be positive, got %d", ErrInvalidValue, c.Gauge.TranscriptDivisor)
	}
	if c.Scan.BytesPerToken <= 0 {
		return fmt.Errorf("%w: scan.bytes_per_token must be positive, got %g", ErrInvalidValue, c.Scan.BytesPerToken)
	}
	if c.Scan.RecentLimit <= 0 {
		return fmt.Errorf("%w: scan.recent_limit must be positive, got %d", ErrInvalidValue, c.Scan.RecentLimit)
	}
	if c.History.MaxPoints <= 0 {
		return fmt.Errorf("%w: history.max_points must be positive, got %d", ErrInvalidValue, c.History.MaxPoints)
	}
	return nil
}

func isOutputFormat(s string) bool {
	for _, f := range OutputFormats {
		if s == f {
			return true
		}
	}
	return false
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, err := loadFromPath(homeConfigPath())
	if err != nil {
		return nil, err
	}
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, err := loadFromPath(projectConfigPath())
	if err != nil {
		return nil, err
	}
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg, err = applyEnv(cfg)
	if err != nil {
		return nil, err
	}

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".compass", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("COMPASS_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".compass", "config.yaml")
}

// loadFromPath loads config from a YAML file. A missing file is not an error.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) (*Config, error) {
	if v := os.Getenv("COMPASS_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v, _ := getEnvBool("COMPASS_VERBOSE"); v {
		cfg.Verbose = true
	}
	if v := os.Getenv("COMPASS_TRANSCRIPTS_DIR"); v != "" {
		cfg.Paths.TranscriptsDir = v
	}
	if v := os.Getenv("COMPASS_SNAPSHOT_FILE"); v != "" {
		cfg.Paths.SnapshotFile = v
	}
	if v := os.Getenv("COMPASS_STATIC_DIR"); v != "" {
		cfg.Paths.StaticDir = v
	}
	if v := os.Getenv("COMPASS_STATE_FILE"); v != "" {
		cfg.Paths.StateFile = v
	}
	if v := os.Getenv("COMPASS_SCAN_EXTENSION"); v != "" {
		cfg.Scan.Extension = v
	}
	if v := os.Getenv("COMPASS_MODEL"); v != "" {
		cfg.Gauge.Model = v
	}
	if v := os.Getenv("COMPASS_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("COMPASS_HISTORY_FILE"); v != "" {
		cfg.Paths.HistoryFile = v
	}
	if v := os.Getenv("COMPASS_PROJECT"); v != "" {
		cfg.History.Project = v
	}

	var errs []error
	if err := envInt("COMPASS_CONTEXT_WINDOW", &cfg.Gauge.ContextWindow); err != nil {
		errs = append(errs, err)
	}
	if err := envInt("COMPASS_TRANSCRIPT_DIVISOR", &cfg.Gauge.TranscriptDivisor); err != nil {
		errs = append(errs, err)
	}
	if err := envInt("COMPASS_RECENT_LIMIT", &cfg.Scan.RecentLimit); err != nil {
		errs = append(errs, err)
	}
	if err := envInt("COMPASS_HISTORY_POINTS", &cfg.History.MaxPoints); err != nil {
		errs = append(errs, err)
	}
	if v := os.Getenv("COMPASS_BYTES_PER_TOKEN"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: COMPASS_BYTES_PER_TOKEN=%q", ErrInvalidValue, v))
		} else {
			cfg.Scan.BytesPerToken = f
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// envInt parses an integer variable into dst when set. Thousands separators
// are accepted.
func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(v), ",", ""))
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
	}
	*dst = n
	return nil
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// mergeFloat overwrites dst with src when src is non-zero.
func mergeFloat(dst *float64, src float64) {
	if src != 0 {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence.
// Booleans can only be switched on by a higher layer.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	if src.Verbose {
		dst.Verbose = true
	}

	mergePaths(&dst.Paths, &src.Paths)
	mergeScan(&dst.Scan, &src.Scan)
	mergeGauge(&dst.Gauge, &src.Gauge)
	mergeStr(&dst.Server.Addr, src.Server.Addr)
	mergeStr(&dst.History.Project, src.History.Project)
	mergeInt(&dst.History.MaxPoints, src.History.MaxPoints)

	return dst
}

func mergePaths(dst, src *PathsConfig) {
	mergeStr(&dst.TranscriptsDir, src.TranscriptsDir)
	mergeStr(&dst.SnapshotFile, src.SnapshotFile)
	mergeStr(&dst.StaticDir, src.StaticDir)
	mergeStr(&dst.StateFile, src.StateFile)
	mergeStr(&dst.HistoryFile, src.HistoryFile)
}

func mergeScan(dst, src *ScanConfig) {
	mergeStr(&dst.Extension, src.Extension)
	mergeStr(&dst.TempMarker, src.TempMarker)
	mergeFloat(&dst.BytesPerToken, src.BytesPerToken)
	mergeInt(&dst.RecentLimit, src.RecentLimit)
}

func mergeGauge(dst, src *GaugeConfig) {
	mergeInt(&dst.ContextWindow, src.ContextWindow)
	mergeInt(&dst.TranscriptDivisor, src.TranscriptDivisor)
	mergeStr(&dst.Model, src.Model)
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.compass/config.yaml"
	SourceProject Source = ".compass/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// getEnvString returns the value and whether the env var was set.
func getEnvString(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

// getEnvBool returns the boolean value and whether it was truthy.
func getEnvBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "true" || v == "1" {
		return true, true
	}
	return false, false
}

// resolveStringField resolves a string through the precedence chain.
func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// resolveIntField is resolveStringField for integers, where zero means unset.
func resolveIntField(home, project, env, flag, def int) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != 0 {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != 0 {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != 0 {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != 0 {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Output         resolved `json:"output"`
	Verbose        resolved `json:"verbose"`
	TranscriptsDir resolved `json:"transcripts_dir"`
	SnapshotFile   resolved `json:"snapshot_file"`
	StaticDir      resolved `json:"static_dir"`
	StateFile      resolved `json:"state_file"`
	HistoryFile    resolved `json:"history_file"`
	Project        resolved `json:"project"`
	ContextWindow  resolved `json:"context_window"`
	Model          resolved `json:"model"`
	Addr           resolved `json:"addr"`
}

type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// Entries lists the resolved values in display order.
func (rc *ResolvedConfig) Entries() []Entry {
	return []Entry{
		{"output", rc.Output},
		{"verbose", rc.Verbose},
		{"paths.transcripts_dir", rc.TranscriptsDir},
		{"paths.snapshot_file", rc.SnapshotFile},
		{"paths.static_dir", rc.StaticDir},
		{"paths.state_file", rc.StateFile},
		{"paths.history_file", rc.HistoryFile},
		{"history.project", rc.Project},
		{"gauge.context_window", rc.ContextWindow},
		{"gauge.model", rc.Model},
		{"server.addr", rc.Addr},
	}
}

// Entry is one key of a ResolvedConfig.
type Entry struct {
	Key string
	resolved
}

// Flags carries the command-line values Resolve attributes to SourceFlag.
type Flags struct {
	Output  string
	Verbose bool
	Dir     string
	Window  int
	Model   string
	Addr    string
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flags Flags) *ResolvedConfig {
	home, _ := loadFromPath(homeConfigPath())       //nolint:errcheck // unreadable layers resolve as unset
	project, _ := loadFromPath(projectConfigPath()) //nolint:errcheck // unreadable layers resolve as unset
	if home == nil {
		home = &Config{}
	}
	if project == nil {
		project = &Config{}
	}
	def := Default()

	envOutput, _ := getEnvString("COMPASS_OUTPUT")
	envVerbose, _ := getEnvBool("COMPASS_VERBOSE")
	envDir, _ := getEnvString("COMPASS_TRANSCRIPTS_DIR")
	envSnapshot, _ := getEnvString("COMPASS_SNAPSHOT_FILE")
	envStatic, _ := getEnvString("COMPASS_STATIC_DIR")
	envState, _ := getEnvString("COMPASS_STATE_FILE")
	envHistory, _ := getEnvString("COMPASS_HISTORY_FILE")
	envProject, _ := getEnvString("COMPASS_PROJECT")
	envModel, _ := getEnvString("COMPASS_MODEL")
	envAddr, _ := getEnvString("COMPASS_ADDR")
	var envWindow int
	_ = envInt("COMPASS_CONTEXT_WINDOW", &envWindow) //nolint:errcheck // malformed env resolves as unset

	rc := &ResolvedConfig{
		Output:         resolveStringField(home.Output, project.Output, envOutput, flags.Output, def.Output),
		Verbose:        resolved{Value: false, Source: SourceDefault},
		TranscriptsDir: resolveStringField(home.Paths.TranscriptsDir, project.Paths.TranscriptsDir, envDir, flags.Dir, def.Paths.TranscriptsDir),
		SnapshotFile:   resolveStringField(home.Paths.SnapshotFile, project.Paths.SnapshotFile, envSnapshot, "", def.Paths.SnapshotFile),
		StaticDir:      resolveStringField(home.Paths.StaticDir, project.Paths.StaticDir, envStatic, "", def.Paths.StaticDir),
		StateFile:      resolveStringField(home.Paths.StateFile, project.Paths.StateFile, envState, "", def.Paths.StateFile),
		HistoryFile:    resolveStringField(home.Paths.HistoryFile, project.Paths.HistoryFile, envHistory, "", def.Paths.HistoryFile),
		Project:        resolveStringField(home.History.Project, project.History.Project, envProject, "", def.History.Project),
		ContextWindow:  resolveIntField(home.Gauge.ContextWindow, project.Gauge.ContextWindow, envWindow, flags.Window, def.Gauge.ContextWindow),
		Model:          resolveStringField(home.Gauge.Model, project.Gauge.Model, envModel, flags.Model, def.Gauge.Model),
		Addr:           resolveStringField(home.Server.Addr, project.Server.Addr, envAddr, flags.Addr, def.Server.Addr),
	}

	// Verbose can only be switched on, so the highest layer that sets it wins.
	if home.Verbose {
		rc.Verbose = resolved{Value: true, Source: SourceHome}
	}
	if project.Verbose {
		rc.Verbose = resolved{Value: true, Source: SourceProject}
	}
	if envVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceEnv}
	}
	if flags.Verbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	return rc
}
