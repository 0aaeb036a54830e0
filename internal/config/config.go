// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Configuration loading and management for arag.
//
// Loads configuration from ~/.arag/config.toml (or config.json as fallback),
// with environment variable overrides and .env support.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/arag-cli/internal/util"
)

// =============================================================================
// CONFIG STRUCTS
// =============================================================================

// Config is the main configuration structure for arag.
type Config struct {
	Server  ServerConfig  `toml:"server" json:"server"`
	Query   QueryConfig   `toml:"query" json:"query"`
	Tasks   TasksConfig   `toml:"tasks" json:"tasks"`
	Upload  UploadConfig  `toml:"upload" json:"upload"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Log     LogConfig     `toml:"log" json:"log"`
	UI      UIConfig      `toml:"ui" json:"ui"`
}

// ServerConfig controls how the backend is reached.
type ServerConfig struct {
	// BaseURL is the root of the document-QA API.
	BaseURL string `toml:"base_url" json:"base_url"`

	// Timeout bounds every JSON request.
	Timeout Duration `toml:"timeout" json:"timeout"`

	// UploadTimeout bounds multipart uploads, which may be large.
	UploadTimeout Duration `toml:"upload_timeout" json:"upload_timeout"`
}

// QueryConfig holds the parameters sent with every question.
type QueryConfig struct {
	Domain        string `toml:"domain" json:"domain"`
	MaxIterations int    `toml:"max_iterations" json:"max_iterations"`
}

// TasksConfig controls embedding task polling.
type TasksConfig struct {
	PollInterval Duration `toml:"poll_interval" json:"poll_interval"`

	// MaxAttempts and MaxDuration are optional ceilings. Zero means unbounded.
	MaxAttempts int      `toml:"max_attempts" json:"max_attempts"`
	MaxDuration Duration `toml:"max_duration" json:"max_duration"`
}

// UploadConfig holds client-side upload limits.
type UploadConfig struct {
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb"`
}

// StorageConfig selects where chat sessions are persisted.
type StorageConfig struct {
	// Backend is one of "file", "sqlite" or "memory".
	Backend string `toml:"backend" json:"backend"`

	// Dir is the data directory. Empty means <config dir>/data.
	Dir string `toml:"dir" json:"dir"`

	// Watch reloads sessions when another process rewrites them (file backend only).
	Watch bool `toml:"watch" json:"watch"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Level string `toml:"level" json:"level"`

	// File is the log destination. Empty means <config dir>/arag.log.
	File string `toml:"file" json:"file"`
}

// UIConfig holds terminal presentation settings.
type UIConfig struct {
	Markdown bool   `toml:"markdown" json:"markdown"`
	Theme    string `toml:"theme" json:"theme"`
	PageSize int    `toml:"page_size" json:"page_size"`
}

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration that reads and writes as text ("2s", "1m30s").
// A bare integer is taken as milliseconds.
type Duration struct {
	time.Duration
}

// Dur wraps d.
func Dur(d time.Duration) Duration {
	return Duration{Duration: d}
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// ParseDuration accepts Go duration syntax or an integer number of milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	DefaultBaseURL       = "http://localhost:8000"
	DefaultTimeout       = 60 * time.Second
	DefaultUploadTimeout = 5 * time.Minute
	DefaultDomain        = "DefaultDocuments"
	DefaultMaxIterations = 2
	DefaultPollInterval  = 2 * time.Second
	DefaultMaxSizeMB     = 50
	DefaultBackend       = "file"
	DefaultLogLevel      = "info"
	DefaultTheme         = "dark"
	DefaultPageSize      = 10
)

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:       DefaultBaseURL,
			Timeout:       Dur(DefaultTimeout),
			UploadTimeout: Dur(DefaultUploadTimeout),
		},
		Query: QueryConfig{
			Domain:        DefaultDomain,
			MaxIterations: DefaultMaxIterations,
		},
		Tasks: TasksConfig{
			PollInterval: Dur(DefaultPollInterval),
		},
		Upload: UploadConfig{
			MaxSizeMB: DefaultMaxSizeMB,
		},
		Storage: StorageConfig{
			Backend: DefaultBackend,
			Watch:   true,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		UI: UIConfig{
			Markdown: true,
			Theme:    DefaultTheme,
			PageSize: DefaultPageSize,
		},
	}
}

// SetDefaults fills zero-valued fields with their defaults.
// Booleans are left alone since false is a valid choice.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Server.BaseURL == "" {
		c.Server.BaseURL = d.Server.BaseURL
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.Server.Timeout.Duration == 0 {
		c.Server.Timeout = d.Server.Timeout
	}
	if c.Server.UploadTimeout.Duration == 0 {
		c.Server.UploadTimeout = d.Server.UploadTimeout
	}

	if c.Query.Domain == "" {
		c.Query.Domain = d.Query.Domain
	}
	if c.Query.MaxIterations == 0 {
		c.Query.MaxIterations = d.Query.MaxIterations
	}

	if c.Tasks.PollInterval.Duration == 0 {
		c.Tasks.PollInterval = d.Tasks.PollInterval
	}

	if c.Upload.MaxSizeMB == 0 {
		c.Upload.MaxSizeMB = d.Upload.MaxSizeMB
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	c.Log.Level = strings.ToLower(c.Log.Level)

	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.PageSize == 0 {
		c.UI.PageSize = d.UI.PageSize
	}
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxSizeMB) * 1024 * 1024
}

// =============================================================================
// PATHS
// =============================================================================

const (
	// HomeEnv overrides the configuration directory.
	HomeEnv = "ARAG_HOME"

	configDirName   = ".arag"
	configFileTOML  = "config.toml"
	configFileJSON  = "config.json"
	dotEnvFile      = ".env"
	historyFileName = "chat_history"
	logFileName     = "arag.log"
	dataDirName     = "data"
)

// ConfigDir returns the configuration directory (~/.arag unless ARAG_HOME is set).
func ConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

// ConfigPathTOML returns the path to config.toml.
func ConfigPathTOML() (string, error) {
	return inConfigDir(configFileTOML)
}

// ConfigPathJSON returns the path to config.json.
func ConfigPathJSON() (string, error) {
	return inConfigDir(configFileJSON)
}

// HistoryPath returns the REPL history file.
func HistoryPath() (string, error) {
	return inConfigDir(historyFileName)
}

func inConfigDir(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// DataDir resolves the storage directory.
func (c *Config) DataDir() (string, error) {
	if c.Storage.Dir != "" {
		return expandHome(c.Storage.Dir)
	}
	return inConfigDir(dataDirName)
}

// LogPath resolves the log file path.
func (c *Config) LogPath() (string, error) {
	if c.Log.File != "" {
		return expandHome(c.Log.File)
	}
	return inConfigDir(logFileName)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOADING
// =============================================================================

// LoadDotEnv loads .env from the working directory and the config directory.
// Variables already present in the environment win. Missing files are ignored.
func LoadDotEnv() error {
	paths := []string{dotEnvFile}
	if p, err := inConfigDir(dotEnvFile); err == nil {
		paths = append(paths, p)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads configuration from the default locations.
// TOML is tried first, then JSON, then built-in defaults. A broken config
// file is reported alongside the defaults rather than aborting.
func Load() (*Config, error) {
	var loadErr error
	if err := LoadDotEnv(); err != nil {
		loadErr = err
	}

	for _, candidate := range []struct {
		path func() (string, error)
		load func(*Config, string) error
		kind string
	}{
		{ConfigPathTOML, LoadTOML, "TOML"},
		{ConfigPathJSON, LoadJSON, "JSON"},
	} {
		path, err := candidate.path()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg := Default()
		if err := candidate.load(cfg, path); err != nil {
			loadErr = errors.Join(loadErr, fmt.Errorf("failed to load %s config: %w", candidate.kind, err))
			continue
		}
		return finish(cfg)
	}

	cfg, err := finish(Default())
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadStored reads the on-disk configuration without environment overrides,
// for editing. Missing files yield defaults.
func LoadStored() (*Config, error) {
	cfg := Default()
	if path, err := ConfigPathTOML(); err == nil && fileExists(path) {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	} else if path, err := ConfigPathJSON(); err == nil && fileExists(path) {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.SetDefaults()
	return cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadFromPath loads configuration from a specific file with full validation.
// Files ending in .json are read as JSON; everything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	load, kind := LoadTOML, "TOML"
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		load, kind = LoadJSON, "JSON"
	}
	if err := load(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load %s config from %s: %w", kind, path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	data, err := cfg.TOML()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString("# arag configuration file\n")
	buf.WriteString("# Generated by arag - edit with care\n\n")
	buf.Write(data)

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// TOML encodes cfg without any header.
func (c *Config) TOML() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validBackends  = []string{"file", "sqlite", "memory"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validThemes    = []string{"dark", "light", "auto", "notty"}
)

// Validate checks the configuration and returns ValidateErrors when any
// field is out of range.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.Server.BaseURL); err != nil {
		add("server.base_url", "invalid URL: %v", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("server.base_url", "scheme must be http or https, got %q", u.Scheme)
	} else if u.Host == "" {
		add("server.base_url", "missing host")
	}
	if c.Server.Timeout.Duration < 0 {
		add("server.timeout", "cannot be negative")
	}
	if c.Server.UploadTimeout.Duration < 0 {
		add("server.upload_timeout", "cannot be negative")
	}

	if strings.TrimSpace(c.Query.Domain) == "" {
		add("query.domain", "cannot be empty")
	}
	if c.Query.MaxIterations < 1 || c.Query.MaxIterations > 10 {
		add("query.max_iterations", "must be 1-10, got %d", c.Query.MaxIterations)
	}

	if c.Tasks.PollInterval.Duration < 100*time.Millisecond {
		add("tasks.poll_interval", "must be at least 100ms, got %s", c.Tasks.PollInterval.Duration)
	}
	if c.Tasks.MaxAttempts < 0 {
		add("tasks.max_attempts", "cannot be negative")
	}
	if c.Tasks.MaxDuration.Duration < 0 {
		add("tasks.max_duration", "cannot be negative")
	}

	if c.Upload.MaxSizeMB < 1 || c.Upload.MaxSizeMB > 1024 {
		add("upload.max_size_mb", "must be 1-1024, got %d", c.Upload.MaxSizeMB)
	}

	if !oneOf(c.Storage.Backend, validBackends) {
		add("storage.backend", "invalid backend '%s', must be one of: %s", c.Storage.Backend, strings.Join(validBackends, ", "))
	}
	if !oneOf(c.Log.Level, validLogLevels) {
		add("log.level", "invalid level '%s', must be one of: %s", c.Log.Level, strings.Join(validLogLevels, ", "))
	}
	if !oneOf(c.UI.Theme, validThemes) {
		add("ui.theme", "invalid theme '%s', must be one of: %s", c.UI.Theme, strings.Join(validThemes, ", "))
	}
	if c.UI.PageSize < 1 || c.UI.PageSize > 100 {
		add("ui.page_size", "must be 1-100, got %d", c.UI.PageSize)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// envOverrides maps environment variables to config keys.
var envOverrides = []struct {
	env string
	key string
}{
	{"ARAG_BASE_URL", "server.base_url"},
	{"ARAG_TIMEOUT", "server.timeout"},
	{"ARAG_DOMAIN", "query.domain"},
	{"ARAG_MAX_ITERATIONS", "query.max_iterations"},
	{"ARAG_POLL_INTERVAL", "tasks.poll_interval"},
	{"ARAG_STORAGE", "storage.backend"},
	{"ARAG_LOG_LEVEL", "log.level"},
}

// EnvVars lists the environment variables ApplyEnvOverrides reads.
func EnvVars() []string {
	vars := make([]string, len(envOverrides))
	for i, o := range envOverrides {
		vars[i] = o.env
	}
	return vars
}

// ApplyEnvOverrides applies ARAG_* environment variables on top of cfg.
func (c *Config) ApplyEnvOverrides() error {
	for _, o := range envOverrides {
		val, ok := os.LookupEnv(o.env)
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}
		if err := c.Set(o.key, strings.TrimSpace(val)); err != nil {
			return fmt.Errorf("%s: %w", o.env, err)
		}
	}
	return nil
}

// =============================================================================
// CLONE / STRING
// =============================================================================

// Clone returns a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the configuration as TOML.
func (c *Config) String() string {
	data, err := c.TOML()
	if err != nil {
		return err.Error()
	}
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance, loading it on first
// access. Load failures fall back to defaults.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk.
func ReloadGlobal() error {
	cfg, err := Load()
	if cfg == nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return err
}

// SetGlobal sets the global configuration instance.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
