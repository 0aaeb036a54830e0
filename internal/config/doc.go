// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for arag.
//
// Supports both TOML and JSON configuration formats, with defaults,
// .env files, environment variable overrides, and validation.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (ARAG_*), including those set by .env files
//   - ~/.arag/config.toml
//   - ~/.arag/config.json
//   - Built-in defaults
//
// ARAG_HOME replaces ~/.arag.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c := client.New(cfg.Server.BaseURL).WithTimeout(cfg.Server.Timeout.Duration)
//
// Keys can be read and written in dot notation:
//
//	_ = cfg.Set("tasks.poll_interval", "500ms")
//	v, _ := cfg.Get("query.domain")
package config
