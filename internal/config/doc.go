// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for misterio.
//
// # Theme File
//
// The optional theme file (default .streamlit/config.toml) is parsed through
// an ordered fallback chain (TOML, then YAML). Every attempt is recorded on
// the returned Result; nothing here ever fails the caller. Only primaryColor
// is read, at the top level or under [theme].
//
//	res := config.Load(config.DefaultThemePath)
//	if color, ok := res.PrimaryColor(); ok {
//	    fmt.Println("primary:", color)
//	}
//
// A Watcher keeps the latest Result and reloads on file changes.
//
// # Settings
//
// Application settings are loaded from (in order of precedence):
//   - Environment variables (MISTERIO_*)
//   - ./misterio.toml
//   - Built-in defaults
//
//	cfg, err := config.LoadSettings(config.DefaultSettingsPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
