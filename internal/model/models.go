// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes one of the hosted models offered in the model picker.
type ModelInfo struct {
	// ID is the model identifier passed through to the completion API
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Description is a brief explanation of the model's strengths
	Description string `json:"description"`
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// catalog is the fixed, ordered set of selectable models. The first entry is
// the default selection. Identifiers are passed through to the provider
// without further validation.
var catalog = []ModelInfo{
	{
		ID:          "llama-3.1-8b-instant",
		Name:        "Llama 3.1 8B Instant",
		Description: "Fast and efficient for short exchanges",
	},
	{
		ID:          "llama-3.3-70b-versatile",
		Name:        "Llama 3.3 70B Versatile",
		Description: "Larger general-purpose model",
	},
	{
		ID:          "deepseek-r1-distill-llama-70b",
		Name:        "DeepSeek R1 Distill Llama 70B",
		Description: "Reasoning-tuned distillation",
	},
}

// =============================================================================
// MODEL LOOKUP FUNCTIONS
// =============================================================================

// Catalog returns a copy of the selectable models in display order.
func Catalog() []ModelInfo {
	out := make([]ModelInfo, len(catalog))
	copy(out, catalog)
	return out
}

// Models returns the selectable model identifiers in display order.
func Models() []string {
	ids := make([]string, len(catalog))
	for i, m := range catalog {
		ids[i] = m.ID
	}
	return ids
}

// DefaultModel returns the model selected when the user has not picked one.
func DefaultModel() string {
	return catalog[0].ID
}

// IsKnownModel reports whether id is one of the selectable models.
func IsKnownModel(id string) bool {
	_, ok := GetModelInfo(id)
	return ok
}

// GetModelInfo looks up a model by its exact identifier.
func GetModelInfo(id string) (ModelInfo, bool) {
	for _, info := range catalog {
		if info.ID == id {
			return info, true
		}
	}
	return ModelInfo{}, false
}

// SelectModel resolves the model a request asked for. Anything outside the
// fixed set, including the empty string, resolves to the default, the same
// outcome a select control with a preselected first option produces.
func SelectModel(id string) string {
	if IsKnownModel(id) {
		return id
	}
	return DefaultModel()
}

// NextModel returns the model after id in display order, wrapping around.
func NextModel(id string) string {
	for i, info := range catalog {
		if info.ID == id {
			return catalog[(i+1)%len(catalog)].ID
		}
	}
	return DefaultModel()
}
