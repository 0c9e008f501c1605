// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the misterio command line.
//
// Commands:
//
//	misterio [serve]   start the web host (default)
//	misterio chat      chat in the terminal
//	misterio version   print build information
//
// Every command loads misterio.toml (if present), applies MISTERIO_*
// environment overrides, configures logging, and reads the API key from the
// CLAVE_API secret (environment first, then .streamlit/secrets.toml).
package cli
