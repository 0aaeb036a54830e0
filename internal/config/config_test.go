// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// isolate points ARAG_HOME at a temp dir and blanks every override.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	for _, v := range EnvVars() {
		t.Setenv(v, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// =============================================================================
// DEFAULTS / LOAD
// =============================================================================

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	if cfg.Server.BaseURL != "http://localhost:8000" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.Timeout.Duration != 60*time.Second {
		t.Errorf("Timeout = %v", cfg.Server.Timeout)
	}
	if cfg.Query.Domain != "DefaultDocuments" || cfg.Query.MaxIterations != 2 {
		t.Errorf("Query = %+v", cfg.Query)
	}
	if cfg.Tasks.PollInterval.Duration != 2*time.Second {
		t.Errorf("PollInterval = %v", cfg.Tasks.PollInterval)
	}
	if cfg.MaxUploadBytes() != 50*1024*1024 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes())
	}
	if cfg.Storage.Backend != "file" || !cfg.Storage.Watch {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_NoFiles(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
}

func TestLoad_TOML(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.toml"), `
[server]
base_url = "https://rag.example.com/"
timeout = "15s"

[query]
domain = "Manuals"

[tasks]
poll_interval = 500
max_duration = "10m"

[ui]
markdown = false
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BaseURL != "https://rag.example.com" {
		t.Errorf("trailing slash should be trimmed, got %q", cfg.Server.BaseURL)
	}
	if cfg.Server.Timeout.Duration != 15*time.Second {
		t.Errorf("Timeout = %v", cfg.Server.Timeout)
	}
	if cfg.Query.Domain != "Manuals" {
		t.Errorf("Domain = %q", cfg.Query.Domain)
	}
	if cfg.Query.MaxIterations != DefaultMaxIterations {
		t.Errorf("absent key should keep default, got %d", cfg.Query.MaxIterations)
	}
	if cfg.Tasks.PollInterval.Duration != 500*time.Millisecond {
		t.Errorf("integer interval should be milliseconds, got %v", cfg.Tasks.PollInterval)
	}
	if cfg.Tasks.MaxDuration.Duration != 10*time.Minute {
		t.Errorf("MaxDuration = %v", cfg.Tasks.MaxDuration)
	}
	if cfg.UI.Markdown {
		t.Error("markdown = false should be honoured")
	}
}

func TestLoad_JSONFallback(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.json"), `{"query": {"domain": "FromJSON", "max_iterations": 3}}`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Query.Domain != "FromJSON" || cfg.Query.MaxIterations != 3 {
		t.Errorf("Query = %+v", cfg.Query)
	}
}

func TestLoad_BrokenFileFallsBackToDefaults(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.toml"), "[server\nbase_url = ")

	cfg, err := Load()
	if err == nil {
		t.Fatal("expected a load error to be reported")
	}
	if cfg == nil || cfg.Server.BaseURL != DefaultBaseURL {
		t.Fatalf("expected defaults alongside the error, got %+v", cfg)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.toml")
	writeFile(t, path, "[server]\nbase_ulr = \"http://x\"\n")

	_, err := LoadFromPath(path)
	if err == nil || !strings.Contains(err.Error(), "server.base_ulr") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[storage]\nbackend = \"redis\"\n")

	_, err := LoadFromPath(path)
	var verrs ValidateErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidateErrors, got %v", err)
	}
	if len(verrs) != 1 || verrs[0].Field != "storage.backend" {
		t.Errorf("errors = %v", verrs)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.toml"), "[query]\ndomain = \"FromFile\"\n")

	t.Setenv("ARAG_DOMAIN", "FromEnv")
	t.Setenv("ARAG_BASE_URL", "http://10.0.0.5:9000")
	t.Setenv("ARAG_POLL_INTERVAL", "250ms")
	t.Setenv("ARAG_MAX_ITERATIONS", "4")
	t.Setenv("ARAG_STORAGE", "SQLite")
	t.Setenv("ARAG_LOG_LEVEL", "debug")
	t.Setenv("ARAG_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Query.Domain != "FromEnv" {
		t.Errorf("env should win over file, got %q", cfg.Query.Domain)
	}
	if cfg.Server.BaseURL != "http://10.0.0.5:9000" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Tasks.PollInterval.Duration != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Tasks.PollInterval)
	}
	if cfg.Query.MaxIterations != 4 {
		t.Errorf("MaxIterations = %d", cfg.Query.MaxIterations)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Log.Level != "debug" || cfg.Server.Timeout.Duration != 5*time.Second {
		t.Errorf("Log = %+v Timeout = %v", cfg.Log, cfg.Server.Timeout)
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	isolate(t)
	t.Setenv("ARAG_MAX_ITERATIONS", "many")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "ARAG_MAX_ITERATIONS") {
		t.Fatalf("expected env error, got %v", err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	t.Setenv("ARAG_DOMAIN", "")
	os.Unsetenv("ARAG_DOMAIN")
	writeFile(t, filepath.Join(dir, ".env"), "ARAG_DOMAIN=FromDotEnv\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Query.Domain != "FromDotEnv" {
		t.Errorf("Domain = %q", cfg.Query.Domain)
	}
}

// =============================================================================
// SAVE
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	dir := isolate(t)

	cfg := Default()
	cfg.Query.Domain = "Saved"
	cfg.Tasks.MaxAttempts = 30
	cfg.Tasks.PollInterval = Dur(750 * time.Millisecond)
	cfg.UI.Markdown = false

	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, "config.toml")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"valid default", func(c *Config) {}, ""},
		{"bad scheme", func(c *Config) { c.Server.BaseURL = "ftp://host" }, "server.base_url"},
		{"no host", func(c *Config) { c.Server.BaseURL = "http://" }, "server.base_url"},
		{"negative timeout", func(c *Config) { c.Server.Timeout = Dur(-time.Second) }, "server.timeout"},
		{"blank domain", func(c *Config) { c.Query.Domain = "  " }, "query.domain"},
		{"iterations too high", func(c *Config) { c.Query.MaxIterations = 11 }, "query.max_iterations"},
		{"iterations zero", func(c *Config) { c.Query.MaxIterations = 0 }, "query.max_iterations"},
		{"poll too fast", func(c *Config) { c.Tasks.PollInterval = Dur(10 * time.Millisecond) }, "tasks.poll_interval"},
		{"negative attempts", func(c *Config) { c.Tasks.MaxAttempts = -1 }, "tasks.max_attempts"},
		{"upload too large", func(c *Config) { c.Upload.MaxSizeMB = 4096 }, "upload.max_size_mb"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"unknown level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"unknown theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"page size", func(c *Config) { c.UI.PageSize = 0 }, "ui.page_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()

			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidateErrors, got %v", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, verrs)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Backend: "MEMORY"}}
	cfg.SetDefaults()

	if cfg.Storage.Backend != "memory" {
		t.Errorf("backend should be lower-cased, got %q", cfg.Storage.Backend)
	}
	if cfg.Query.Domain != DefaultDomain || cfg.UI.PageSize != DefaultPageSize {
		t.Errorf("zero fields not defaulted: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaulted config should validate: %v", err)
	}
}

// =============================================================================
// GET / SET
// =============================================================================

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	if err := cfg.Set("query.domain", "Legal"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("query.max-iterations", "5"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("Tasks.Poll_Interval", "1500"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("storage.watch", "off"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("ui.page_size", 25); err != nil {
		t.Fatal(err)
	}

	checks := map[string]any{
		"query.domain":         "Legal",
		"query.max_iterations": 5,
		"tasks.poll_interval":  "1.5s",
		"storage.watch":        false,
		"ui.page_size":         25,
	}
	for key, want := range checks {
		got, err := cfg.Get(key)
		if err != nil {
			t.Errorf("Get(%s): %v", key, err)
			continue
		}
		if got != want {
			t.Errorf("Get(%s) = %v (%T), want %v (%T)", key, got, got, want, want)
		}
	}
}

func TestConfig_GetSetErrors(t *testing.T) {
	cfg := Default()

	cases := []struct {
		key   string
		value any
	}{
		{"", "x"},
		{"nope", "x"},
		{"server", "x"},
		{"server.base_url.extra", "x"},
		{"query.max_iterations", "lots"},
		{"storage.watch", "maybe"},
		{"tasks.poll_interval", "soon"},
		{"query.domain", 3.5},
	}
	for _, c := range cases {
		if err := cfg.Set(c.key, c.value); err == nil {
			t.Errorf("Set(%q, %v) should fail", c.key, c.value)
		}
	}
	if _, err := cfg.Get("server"); err == nil {
		t.Error("Get on a section should fail")
	}
}

func TestGetAllKeys(t *testing.T) {
	keys := GetAllKeys()
	cfg := Default()
	for _, k := range keys {
		if _, err := cfg.Get(k); err != nil {
			t.Errorf("key %s not readable: %v", k, err)
		}
	}
	joined := strings.Join(keys, " ")
	for _, want := range []string{"server.base_url", "tasks.max_duration", "storage.backend", "ui.markdown"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing key %s in %v", want, keys)
		}
	}
}

func TestConfig_Clone(t *testing.T) {
	original := Default()
	clone := original.Clone()
	clone.Query.Domain = "changed"

	if original.Query.Domain == "changed" {
		t.Error("modifying clone affected original")
	}
}

func TestConfig_String(t *testing.T) {
	s := Default().String()
	for _, want := range []string{"[server]", `base_url = "http://localhost:8000"`, `poll_interval = "2s"`} {
		if !strings.Contains(s, want) {
			t.Errorf("String() missing %q:\n%s", want, s)
		}
	}
}

func TestConfig_Paths(t *testing.T) {
	dir := isolate(t)

	cfg := Default()
	data, err := cfg.DataDir()
	if err != nil || data != filepath.Join(dir, "data") {
		t.Errorf("DataDir = %q, %v", data, err)
	}
	logPath, err := cfg.LogPath()
	if err != nil || logPath != filepath.Join(dir, "arag.log") {
		t.Errorf("LogPath = %q, %v", logPath, err)
	}

	cfg.Storage.Dir = "/srv/arag"
	if data, _ := cfg.DataDir(); data != "/srv/arag" {
		t.Errorf("explicit dir ignored: %q", data)
	}
}

// =============================================================================
// GLOBAL
// =============================================================================

func TestConfig_GlobalInitialization(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	cfg := Global()
	if cfg == nil {
		t.Fatal("Global() returned nil")
	}
	if Global() != cfg {
		t.Error("Global() should return the same instance")
	}
}

func TestConfig_SetGlobalOverwrites(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	custom := Default()
	custom.Query.Domain = "Custom"
	SetGlobal(custom)

	if got := Global(); got.Query.Domain != "Custom" {
		t.Errorf("Global().Query.Domain = %q", got.Query.Domain)
	}
}

// TestConfig_ConcurrentAccess tests that Global, SetGlobal and ReloadGlobal
// can be called concurrently. Run with -race.
func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
		go func() {
			defer wg.Done()
			_ = ReloadGlobal()
		}()
	}
	wg.Wait()
}
