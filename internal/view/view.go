// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package view

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/misterio/internal/config"
	"github.com/jeranaias/misterio/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Fixed page copy.
const (
	Title       = "Misterio"
	Subtitle    = "El Chatbot llamado 'Misterio', funciona con Groq"
	Placeholder = "Escribí tu mensaje:"
	ModelLabel  = "Modelo"
)

// roleLabels are lower-case; Render title-cases them.
var roleLabels = map[model.Role]string{
	model.RoleUser:      "vos",
	model.RoleAssistant: "misterio",
}

// cssColor accepts hex colors and plain color names only.
var cssColor = regexp.MustCompile(`^(#[0-9A-Fa-f]{3,8}|[A-Za-z]{3,20})$`)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy   = bluemonday.UGCPolicy()
)

// =============================================================================
// TYPES
// =============================================================================

// Input is everything Render needs.
type Input struct {
	Messages      []model.Message
	SelectedModel string
	Theme         config.Result
	LastError     string
	// Busy marks a turn in progress; hosts disable the input.
	Busy bool
}

// ModelOption is one entry of the model selector.
type ModelOption struct {
	ID          string
	Name        string
	Description string
	Selected    bool
}

// MessageView is one rendered chat message.
type MessageView struct {
	Role    string
	Label   string
	Content string
	HTML    template.HTML
}

// ViewModel is the complete, host-neutral page state.
type ViewModel struct {
	Title       string
	Subtitle    string
	Placeholder string
	ModelLabel  string

	Models        []ModelOption
	SelectedModel string
	Messages      []MessageView

	// PrimaryColor is the configured value, shown verbatim in the banner.
	PrimaryColor string
	ColorBanner  string
	// AccentColor is PrimaryColor when it is safe to use as a CSS value.
	AccentColor string

	Advisory string
	Error    string
	Busy     bool
}

// IsEmpty reports whether there are no messages to show.
func (v ViewModel) IsEmpty() bool {
	return len(v.Messages) == 0
}

// =============================================================================
// RENDER
// =============================================================================

// Render builds the view model for in.
func Render(in Input) ViewModel {
	selected := model.SelectModel(in.SelectedModel)

	vm := ViewModel{
		Title:         Title,
		Subtitle:      Subtitle,
		Placeholder:   Placeholder,
		ModelLabel:    ModelLabel,
		SelectedModel: selected,
		Advisory:      in.Theme.Advisory(),
		Error:         ErrorText(in.LastError),
		Busy:          in.Busy,
	}

	for _, info := range model.Catalog() {
		vm.Models = append(vm.Models, ModelOption{
			ID:          info.ID,
			Name:        info.Name,
			Description: info.Description,
			Selected:    info.ID == selected,
		})
	}

	caser := cases.Title(language.Spanish)
	vm.Messages = make([]MessageView, 0, len(in.Messages))
	for _, m := range in.Messages {
		content := norm.NFC.String(m.Content)
		vm.Messages = append(vm.Messages, MessageView{
			Role:    string(m.Role),
			Label:   caser.String(labelFor(m)),
			Content: content,
			HTML:    RenderMarkdown(content),
		})
	}

	if color, ok := in.Theme.PrimaryColor(); ok {
		vm.PrimaryColor = color
		vm.ColorBanner = ColorBanner(color)
		if cssColor.MatchString(color) {
			vm.AccentColor = color
		}
	}

	return vm
}

func labelFor(m model.Message) string {
	if name := m.NameOrEmpty(); name != "" {
		return name
	}
	if l, ok := roleLabels[m.Role]; ok {
		return l
	}
	return string(m.Role)
}

// ColorBanner formats the primary color advisory line.
func ColorBanner(color string) string {
	return "Color primario en config: `" + color + "`"
}

// ErrorText formats a turn error for display, or "" for none.
func ErrorText(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return ""
	}
	return "No se pudo obtener una respuesta: " + msg
}

// RenderMarkdown converts markdown to sanitized HTML. Content that fails to
// convert is returned escaped.
func RenderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(policy.SanitizeBytes(buf.Bytes()))
}
