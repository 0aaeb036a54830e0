// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - The "config" command.
//
// Subcommands:
//
//	show (default)      Display the effective configuration
//	get <key>           Print one value
//	set <key> <value>   Change a value in the config file
//	keys                List every key
//	reset --confirm     Write the defaults
//	path                Show the configuration file path
//
// Examples:
//
//	arag config set server.base_url http://rag.internal:8000
//	arag config set tasks.poll_interval 1s
//	arag config set ui.markdown false
//
// "show" reflects environment overrides; "set" edits the file only.

package cli

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jeranaias/arag-cli/internal/config"
)

var configSubcommands = []string{"show", "get", "set", "keys", "reset", "path"}

// HandleConfig dispatches the config subcommands.
func HandleConfig(app *App) error {
	p := app.Args.Parser()

	switch p.Subcommand() {
	case "", "show":
		return app.showConfig()
	case "get":
		return app.getConfig(p.Positional(1))
	case "set":
		return app.setConfig(p.Positional(1), JoinPositionalArgs(p, 2))
	case "keys":
		return app.configKeys()
	case "reset":
		return app.resetConfig(p.BoolFlag("confirm"))
	case "path":
		return app.configPath()
	default:
		return ErrUnknownSubcommand("config", p.Subcommand(), configSubcommands)
	}
}

func (a *App) showConfig() error {
	if a.JSON() {
		return a.emit("config show", a.Config)
	}
	data, err := a.Config.TOML()
	if err != nil {
		return err
	}
	return Highlight(a.Out, string(data), "toml", ColorsEnabled() && IsTerminalWriter(a.Out))
}

func (a *App) getConfig(key string) error {
	if key == "" {
		return ErrMissingArgument("key", "arag config get server.base_url")
	}
	value, err := a.Config.Get(key)
	if err != nil {
		return NewValidationError("key", key, err.Error())
	}
	if a.JSON() {
		return a.emit("config get", map[string]any{"key": key, "value": value})
	}
	fmt.Fprintln(a.Out, value)
	return nil
}

func (a *App) setConfig(key, value string) error {
	if key == "" || value == "" {
		return ErrMissingArgument("key and value", "arag config set query.domain Contracts")
	}

	cfg, err := config.LoadStored()
	if err != nil {
		return WrapError(err, "failed to read config file")
	}
	if err := cfg.Set(key, value); err != nil {
		return NewValidationError(key, value, err.Error())
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}

	stored, _ := cfg.Get(key)
	if a.JSON() {
		return a.emit("config set", map[string]any{"key": key, "value": stored})
	}
	a.info("%s %s = %v", RenderStatus("ok"), strings.ToLower(key), stored)
	return nil
}

func (a *App) configKeys() error {
	keys := config.GetAllKeys()
	if a.JSON() {
		return a.emit("config keys", keys)
	}
	for _, k := range keys {
		v, _ := a.Config.Get(k)
		fmt.Fprintln(a.Out, RenderField(k, fmt.Sprint(v)))
	}
	return nil
}

func (a *App) resetConfig(confirmed bool) error {
	if err := a.RequireConfirmation("Reset the configuration to defaults", confirmed); err != nil {
		return err
	}
	if err := config.Save(config.Default()); err != nil {
		return err
	}
	if a.JSON() {
		return a.emit("config reset", map[string]string{"status": "reset"})
	}
	a.info("%s Configuration reset to defaults", RenderStatus("ok"))
	return nil
}

func (a *App) configPath() error {
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	tomlPath, _ := config.ConfigPathTOML()
	jsonPath, _ := config.ConfigPathJSON()
	if a.JSON() {
		return a.emit("config path", map[string]string{"dir": dir, "toml": tomlPath, "json": jsonPath})
	}
	if a.Args.Quiet {
		fmt.Fprintln(a.Out, tomlPath)
		return nil
	}
	var buf bytes.Buffer
	fmt.Fprintln(&buf, RenderField("Directory", dir))
	fmt.Fprintln(&buf, RenderField("Config", tomlPath))
	fmt.Fprintln(&buf, RenderField("Legacy JSON", jsonPath))
	_, err = a.Out.Write(buf.Bytes())
	return err
}
