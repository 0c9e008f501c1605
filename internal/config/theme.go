// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultThemePath is the theme file location, relative to the working
// directory.
var DefaultThemePath = filepath.Join(".streamlit", "config.toml")

// PrimaryColorKey is the only theme key misterio reads.
const PrimaryColorKey = "primaryColor"

// =============================================================================
// PARSE RESULT TYPES
// =============================================================================

// Status describes how a theme load ended.
type Status int

const (
	// StatusAbsent means no file exists at the path.
	StatusAbsent Status = iota
	// StatusLoaded means a parser accepted the file.
	StatusLoaded
	// StatusUnreadable means the file exists but could not be read.
	StatusUnreadable
	// StatusUnparseable means every parser in the chain rejected the file.
	StatusUnparseable
	// StatusNoParser means the chain was empty.
	StatusNoParser
)

// String returns the status name used in logs.
func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusLoaded:
		return "loaded"
	case StatusUnreadable:
		return "unreadable"
	case StatusUnparseable:
		return "unparseable"
	case StatusNoParser:
		return "no_parser"
	default:
		return "unknown"
	}
}

// Errors recorded on a Result. They are never returned from LoadConfig.
var (
	// ErrConfigRead covers a theme file that exists but cannot be read.
	ErrConfigRead = errors.New("config file unreadable")
	// ErrConfigParse covers a theme file that no parser accepts.
	ErrConfigParse = errors.New("config file unparseable")
	// ErrMissingParser covers a chain with no parsers to try.
	ErrMissingParser = errors.New("no config parser available")
)

// Parser decodes raw theme bytes into a key/value map.
type Parser struct {
	Name   string
	Decode func(data []byte) (map[string]any, error)
}

// Attempt records one parser's outcome.
type Attempt struct {
	Parser string
	Err    error
}

// Result is the outcome of loading the theme file.
type Result struct {
	Path     string
	Status   Status
	Parser   string
	Values   map[string]any
	Attempts []Attempt
	Err      error
}

// OK reports whether a parser produced values.
func (r Result) OK() bool {
	return r.Status == StatusLoaded
}

// Advisory returns a user-facing notice for degraded loads, or "" when
// nothing needs to be said. An absent file is not worth mentioning.
func (r Result) Advisory() string {
	switch r.Status {
	case StatusNoParser:
		return fmt.Sprintf("No hay un parser disponible. No se puede leer %s desde el código.", r.Path)
	case StatusUnreadable, StatusUnparseable:
		return fmt.Sprintf("No se pudo leer %s; se usa la configuración por defecto.", r.Path)
	default:
		return ""
	}
}

// PrimaryColor returns the configured primary color, if any.
func (r Result) PrimaryColor() (string, bool) {
	return PrimaryColor(r.Values)
}

// =============================================================================
// PARSER CHAIN
// =============================================================================

// DefaultParsers is the chain for TOML theme files: the raw bytes first,
// then the text with any BOM stripped and CRLF line endings normalized.
// A file neither reader accepts is malformed and yields no values.
func DefaultParsers() []Parser {
	return []Parser{
		{Name: "toml", Decode: decodeTOML},
		{Name: "toml-text", Decode: decodeTOMLText},
	}
}

// YAMLParsers is the chain for themes kept in a .yaml or .yml file.
func YAMLParsers() []Parser {
	return []Parser{{Name: "yaml", Decode: decodeYAML}}
}

// ParsersFor picks the chain by file extension. Anything that is not YAML
// is read as TOML.
func ParsersFor(path string) []Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAMLParsers()
	default:
		return DefaultParsers()
	}
}

func decodeTOML(data []byte) (map[string]any, error) {
	values := map[string]any{}
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&values); err != nil {
		return nil, err
	}
	return values, nil
}

func decodeTOMLText(data []byte) (map[string]any, error) {
	text := strings.TrimPrefix(string(data), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	values := map[string]any{}
	if _, err := toml.Decode(text, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func decodeYAML(data []byte) (map[string]any, error) {
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Parse runs data through the parser chain and returns the first success.
// An empty file parses to an empty map.
func Parse(data []byte, parsers ...Parser) Result {
	if len(parsers) == 0 {
		return Result{Status: StatusNoParser, Values: map[string]any{}, Err: ErrMissingParser}
	}

	res := Result{Values: map[string]any{}}
	for _, p := range parsers {
		values, err := p.Decode(data)
		res.Attempts = append(res.Attempts, Attempt{Parser: p.Name, Err: err})
		if err != nil {
			continue
		}
		if values == nil {
			values = map[string]any{}
		}
		res.Status = StatusLoaded
		res.Parser = p.Name
		res.Values = values
		return res
	}

	res.Status = StatusUnparseable
	res.Err = ErrConfigParse
	return res
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the theme file at path with the chain ParsersFor selects.
func Load(path string) Result {
	return LoadWith(path, ParsersFor(path)...)
}

// LoadWith reads the theme file at path and parses it with the given chain.
func LoadWith(path string, parsers ...Parser) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Path: path, Status: StatusAbsent, Values: map[string]any{}}
		}
		return Result{
			Path:   path,
			Status: StatusUnreadable,
			Values: map[string]any{},
			Err:    fmt.Errorf("%w: %v", ErrConfigRead, err),
		}
	}

	res := Parse(data, parsers...)
	res.Path = path
	return res
}

// LoadConfig returns the theme key/value map at path. It never fails: a
// missing file, a missing parser, or a bad file all yield an empty map.
// Degraded loads are logged as warnings.
func LoadConfig(path string) map[string]any {
	res := Load(path)
	logResult(res)
	return res.Values
}

func logResult(res Result) {
	switch res.Status {
	case StatusLoaded:
		log.Debug().Str("component", "config").Str("path", res.Path).Str("parser", res.Parser).Msg("theme loaded")
	case StatusAbsent:
		log.Debug().Str("component", "config").Str("path", res.Path).Msg("no theme file")
	default:
		ev := log.Warn().Str("component", "config").Str("path", res.Path).Str("status", res.Status.String())
		for _, a := range res.Attempts {
			if a.Err != nil {
				ev = ev.AnErr(a.Parser, a.Err)
			}
		}
		ev.Err(res.Err).Msg("theme ignored")
	}
}

// PrimaryColor looks up primaryColor at the top level, then under [theme].
func PrimaryColor(values map[string]any) (string, bool) {
	if c, ok := stringValue(values[PrimaryColorKey]); ok {
		return c, true
	}
	if theme, ok := values["theme"].(map[string]any); ok {
		return stringValue(theme[PrimaryColorKey])
	}
	return "", false
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
