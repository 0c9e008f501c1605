// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package view turns session state and theme settings into a host-neutral
// view model. Render is pure: the same Input always yields the same
// ViewModel, and nothing here performs I/O.
package view
