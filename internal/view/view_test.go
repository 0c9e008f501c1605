// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package view

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/misterio/internal/config"
	"github.com/jeranaias/misterio/internal/model"
)

func loaded(values map[string]any) config.Result {
	return config.Result{Status: config.StatusLoaded, Parser: "toml", Values: values}
}

func TestRender_Empty(t *testing.T) {
	vm := Render(Input{})

	assert.Equal(t, "Misterio", vm.Title)
	assert.Equal(t, Subtitle, vm.Subtitle)
	assert.Equal(t, "Escribí tu mensaje:", vm.Placeholder)
	assert.True(t, vm.IsEmpty())
	assert.Empty(t, vm.ColorBanner)
	assert.Empty(t, vm.Advisory)
	assert.Empty(t, vm.Error)

	require.Len(t, vm.Models, len(model.Models()))
	assert.True(t, vm.Models[0].Selected, "default model preselected")
	assert.Equal(t, model.DefaultModel(), vm.SelectedModel)
}

func TestRender_Messages(t *testing.T) {
	msgs := []model.Message{
		model.NewMessage(model.RoleUser, "hi"),
		model.NewMessage(model.RoleAssistant, "**hola**"),
		model.NewMessage(model.RoleUser, "soy yo").WithName("ana"),
	}

	vm := Render(Input{Messages: msgs, SelectedModel: "llama-3.3-70b-versatile"})

	got := make([]string, 0, len(vm.Messages))
	for _, m := range vm.Messages {
		got = append(got, m.Role+"|"+m.Label+"|"+m.Content)
	}
	want := []string{"user|Vos|hi", "assistant|Misterio|**hola**", "user|Ana|soy yo"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, string(vm.Messages[1].HTML), "<strong>hola</strong>")

	for _, opt := range vm.Models {
		assert.Equal(t, opt.ID == "llama-3.3-70b-versatile", opt.Selected, opt.ID)
	}
}

func TestRender_UnknownModelSelectsDefault(t *testing.T) {
	vm := Render(Input{SelectedModel: "nope"})
	assert.Equal(t, model.DefaultModel(), vm.SelectedModel)
}

func TestRender_PrimaryColor(t *testing.T) {
	tests := []struct {
		name   string
		color  string
		accent string
	}{
		{name: "hex", color: "#FF4B4B", accent: "#FF4B4B"},
		{name: "named", color: "teal", accent: "teal"},
		{name: "unsafe css", color: "red;}body{display:none", accent: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			vm := Render(Input{Theme: loaded(map[string]any{"primaryColor": tc.color})})
			assert.Equal(t, tc.color, vm.PrimaryColor)
			assert.Equal(t, "Color primario en config: `"+tc.color+"`", vm.ColorBanner)
			assert.Equal(t, tc.accent, vm.AccentColor)
		})
	}
}

func TestRender_ThemeSection(t *testing.T) {
	vm := Render(Input{Theme: loaded(map[string]any{
		"theme": map[string]any{"primaryColor": "#00AAFF"},
	})})
	assert.Equal(t, "#00AAFF", vm.PrimaryColor)
}

func TestRender_Advisory(t *testing.T) {
	res := config.Parse([]byte(`primaryColor = "X"`))
	res.Path = ".streamlit/config.toml"

	vm := Render(Input{Theme: res})
	assert.Contains(t, vm.Advisory, ".streamlit/config.toml")
	assert.Empty(t, vm.ColorBanner)
}

func TestRender_Error(t *testing.T) {
	vm := Render(Input{LastError: errors.New("HTTP 401").Error()})
	assert.True(t, strings.HasSuffix(vm.Error, "HTTP 401"))
	assert.Empty(t, Render(Input{LastError: "  "}).Error)
}

func TestRender_Pure(t *testing.T) {
	in := Input{
		Messages:      []model.Message{model.NewMessage(model.RoleUser, "a"), model.NewMessage(model.RoleAssistant, "b")},
		SelectedModel: "deepseek-r1-distill-llama-70b",
		Theme:         loaded(map[string]any{"primaryColor": "#123456"}),
		LastError:     "x",
	}
	if diff := cmp.Diff(Render(in), Render(in)); diff != "" {
		t.Errorf("Render not deterministic:\n%s", diff)
	}
}

func TestRenderMarkdown_Sanitizes(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		contain string
		absent  string
	}{
		{name: "script tag", in: "hola <script>alert(1)</script>", absent: "<script"},
		{name: "event handler", in: `<img src="x" onerror="alert(1)">`, absent: "onerror"},
		{name: "javascript link", in: "[x](javascript:alert(1))", absent: "javascript:"},
		{name: "code block", in: "```\nfmt.Println()\n```", contain: "<code>"},
		{name: "table", in: "| a | b |\n|---|---|\n| 1 | 2 |", contain: "<table>"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := string(RenderMarkdown(tc.in))
			if tc.contain != "" {
				assert.Contains(t, out, tc.contain)
			}
			if tc.absent != "" {
				assert.NotContains(t, out, tc.absent)
			}
		})
	}
}

func TestRender_NormalizesContent(t *testing.T) {
	// "e" followed by a combining acute accent composes to "é".
	vm := Render(Input{Messages: []model.Message{model.NewMessage(model.RoleUser, "cafe\u0301")}})
	assert.Equal(t, "caf\u00e9", vm.Messages[0].Content)
}
