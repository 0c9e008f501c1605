// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui is the terminal front end for misterio.
//
// It runs the same turns as the web host against a single in-process
// session: the history scrolls in a viewport, assistant replies are rendered
// as markdown, and the accent color follows the theme file's primaryColor.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/misterio/internal/chat"
	"github.com/jeranaias/misterio/internal/config"
	"github.com/jeranaias/misterio/internal/model"
	"github.com/jeranaias/misterio/internal/session"
	"github.com/jeranaias/misterio/internal/view"
)

// =============================================================================
// OPTIONS
// =============================================================================

// ThemeSource supplies the current theme file result.
type ThemeSource interface {
	Current() config.Result
}

type runner interface {
	Run(ctx context.Context) error
}

// themeNotifier is a ThemeSource that publishes reloads.
type themeNotifier interface {
	OnChange(fn func(config.Result))
}

type staticTheme config.Result

func (t staticTheme) Current() config.Result { return config.Result(t) }

// themeChangedMsg carries a reloaded theme into the program.
type themeChangedMsg struct {
	result config.Result
}

// subscribeTheme forwards reloads from src to send and reports whether src
// publishes them at all.
func subscribeTheme(src ThemeSource, send func(tea.Msg)) bool {
	n, ok := src.(themeNotifier)
	if !ok {
		return false
	}
	n.OnChange(func(res config.Result) {
		send(themeChangedMsg{result: res})
	})
	return true
}

// Options configures the terminal host.
type Options struct {
	// Completer runs completions. Nil leaves the prompt usable but every
	// turn reports the missing client.
	Completer chat.Completer
	Theme     ThemeSource
	// State is the conversation to continue. Nil starts a new one.
	State  *session.State
	Logger *zerolog.Logger
}

// turnDoneMsg reports the end of a turn.
type turnDoneMsg struct {
	reply string
	err   error
}

// =============================================================================
// MODEL
// =============================================================================

const (
	defaultWidth  = 80
	defaultHeight = 24
	// chromeLines covers the status line, prompt and help below the viewport.
	chromeLines = 3
)

// Model is the bubbletea model for the chat screen.
type Model struct {
	ctx       context.Context
	completer chat.Completer
	theme     config.Result
	state     *session.State
	logger    zerolog.Logger

	keys     KeyMap
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	styles   styles
	accent   string
	notice   string

	vm      view.ViewModel
	header  string
	buf     *streamBuffer
	partial string
	busy    bool

	width  int
	height int
}

// NewModel creates the chat screen. ctx bounds every turn it starts.
func NewModel(ctx context.Context, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = view.Placeholder
	ti.CharLimit = 4096
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	theme := opts.Theme
	if theme == nil {
		theme = staticTheme{}
	}
	logger := log.With().Str("component", "tui").Logger()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "tui").Logger()
	}

	m := Model{
		ctx:       ctx,
		completer: opts.Completer,
		theme:     theme.Current(),
		state:     session.InitState(opts.State),
		logger:    logger,
		keys:      DefaultKeyMap(),
		viewport:  viewport.New(defaultWidth, defaultHeight-chromeLines),
		input:     ti,
		spinner:   sp,
		styles:    newStyles(""),
		buf:       &streamBuffer{},
		width:     defaultWidth,
		height:    defaultHeight,
	}
	m.renderer = newRenderer(defaultWidth)
	m.refresh()
	return m
}

// State returns the conversation the model drives.
func (m Model) State() *session.State {
	return m.state
}

// Busy reports whether a turn is in flight.
func (m Model) Busy() bool {
	return m.busy
}

func newRenderer(width int) *glamour.TermRenderer {
	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return nil
	}
	return r
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.renderer = newRenderer(msg.Width)
		m.input.Width = msg.Width - runewidth.StringWidth(m.input.Prompt) - 1
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case streamTickMsg:
		if !m.busy {
			return m, nil
		}
		if delta, ok := m.buf.Take(); ok {
			m.partial += delta
		}
		m.refresh()
		return m, streamTickCmd()

	case themeChangedMsg:
		m.theme = msg.result
		m.refresh()
		return m, nil

	case turnDoneMsg:
		m.busy = false
		m.partial = ""
		m.buf.Take()
		if errors.Is(msg.err, chat.ErrNoClient) {
			m.state.SetLastError(msg.err)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.CycleModel):
		if !m.busy {
			m.state.SelectModel(model.NextModel(m.state.Model()))
			m.notice = ""
			m.refresh()
		}
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		m.notice = m.copyLastReply()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		text := m.input.Value()
		if strings.TrimSpace(text) == "" || m.busy {
			return m, nil
		}
		m.input.Reset()
		m.busy = true
		m.partial = ""
		m.notice = ""
		return m, tea.Batch(m.turnCmd(text), streamTickCmd(), m.spinner.Tick)

	case key.Matches(msg, m.keys.Up, m.keys.Down, m.keys.PageUp, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// copyLastReply copies the newest assistant message and returns the notice
// to show in the status line.
func (m Model) copyLastReply() string {
	msgs := m.state.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != model.RoleAssistant {
			continue
		}
		if msgs[i].Content == "" {
			break
		}
		if err := copyToClipboard(msgs[i].Content); err != nil {
			m.logger.Debug().Err(err).Msg("clipboard write failed")
			return "No se pudo copiar"
		}
		return "Respuesta copiada"
	}
	return "No hay respuesta para copiar"
}

// turnCmd runs one turn off the UI goroutine. Deltas land in the stream
// buffer and are drawn on the next frame tick.
func (m Model) turnCmd(text string) tea.Cmd {
	ctx, completer, st, buf, logger := m.ctx, m.completer, m.state, m.buf, m.logger
	modelID := st.Model()
	return func() tea.Msg {
		_, reply, err := chat.RunTurn(ctx, completer, modelID, text, st,
			chat.WithDelta(buf.Write),
			chat.WithLogger(logger),
		)
		return turnDoneMsg{reply: reply, err: err}
	}
}

// =============================================================================
// RENDERING
// =============================================================================

// refresh re-renders the view model into the header and viewport.
func (m *Model) refresh() {
	m.vm = view.Render(view.Input{
		Messages:      m.state.Messages(),
		SelectedModel: m.state.Model(),
		Theme:         m.theme,
		LastError:     m.state.LastError(),
		Busy:          m.busy,
	})
	if m.vm.AccentColor != m.accent {
		m.accent = m.vm.AccentColor
		m.styles = newStyles(m.accent)
	}

	m.header = m.renderHeader()
	vpHeight := m.height - lipgloss.Height(m.header) - chromeLines
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = vpHeight

	blocks := make([]string, 0, len(m.vm.Messages)+1)
	for _, msg := range m.vm.Messages {
		blocks = append(blocks, m.renderMessage(msg))
	}
	if m.busy && m.partial != "" {
		blocks = append(blocks, m.styles.botLabel.Render(roleLabel(model.RoleAssistant))+"\n"+m.partial)
	}
	m.viewport.SetContent(strings.Join(blocks, "\n\n"))
	m.viewport.GotoBottom()
}

func (m *Model) renderHeader() string {
	lines := []string{
		m.styles.title.Render(m.vm.Title),
		m.styles.subtitle.Render(m.vm.Subtitle),
	}
	if m.vm.ColorBanner != "" {
		lines = append(lines, m.styles.banner.Render(m.vm.ColorBanner))
	}
	if m.vm.Advisory != "" {
		lines = append(lines, m.styles.advisory.Render(m.vm.Advisory))
	}
	if m.vm.Error != "" {
		lines = append(lines, m.styles.errorLine.Render(m.vm.Error))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderMessage(msg view.MessageView) string {
	if msg.Role == string(model.RoleUser) {
		return m.styles.userLabel.Render(msg.Label) + "\n" + msg.Content
	}
	body := msg.Content
	if m.renderer != nil {
		if out, err := m.renderer.Render(msg.Content); err == nil {
			body = strings.TrimRight(out, "\n")
		}
	}
	return m.styles.botLabel.Render(msg.Label) + "\n" + body
}

// roleLabel matches the labels view.Render assigns.
func roleLabel(role model.Role) string {
	if role == model.RoleUser {
		return "Vos"
	}
	return "Misterio"
}

// statusLine summarizes the model, session age and history length.
func (m Model) statusLine() string {
	indicator := "·"
	if m.busy {
		indicator = m.spinner.View()
	}
	name := m.vm.SelectedModel
	if info, ok := model.GetModelInfo(name); ok {
		name = info.Name
	}
	line := fmt.Sprintf("%s %s: %s · sesión %s · %d mensajes",
		indicator, view.ModelLabel, name,
		session.FormatDuration(time.Since(m.state.StartTime())), m.state.Len())
	if m.notice != "" {
		line += " · " + m.notice
	}
	return runewidth.Truncate(line, m.width, "…")
}

// View implements tea.Model.
func (m Model) View() string {
	return strings.Join([]string{
		m.header,
		m.viewport.View(),
		m.styles.status.Render(m.statusLine()),
		m.input.View(),
		m.styles.help.Render(runewidth.Truncate(m.keys.HelpLine(), m.width, "…")),
	}, "\n")
}

// =============================================================================
// RUN
// =============================================================================

// Run starts the terminal host and blocks until the user quits or ctx is
// cancelled. A watching theme source runs alongside and its reloads are
// delivered to the program as messages.
func Run(ctx context.Context, opts Options, programOpts ...tea.ProgramOption) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	m := NewModel(gctx, opts)
	programOpts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(gctx)}, programOpts...)
	p := tea.NewProgram(m, programOpts...)

	if subscribeTheme(opts.Theme, p.Send) {
		m.logger.Debug().Msg("following theme reloads")
	}
	if r, ok := opts.Theme.(runner); ok {
		g.Go(func() error { return r.Run(gctx) })
	}

	g.Go(func() error {
		defer cancel()
		if _, err := p.Run(); err != nil {
			if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("terminal ui: %w", err)
		}
		return nil
	})

	return g.Wait()
}
