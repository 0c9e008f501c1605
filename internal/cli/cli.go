// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeranaias/misterio/internal/chat"
	"github.com/jeranaias/misterio/internal/config"
	"github.com/jeranaias/misterio/internal/groq"
	"github.com/jeranaias/misterio/internal/logging"
	"github.com/jeranaias/misterio/internal/secrets"
	"github.com/jeranaias/misterio/internal/server"
	"github.com/jeranaias/misterio/internal/session"
	"github.com/jeranaias/misterio/internal/tui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// APPLICATION BOOTSTRAP
// =============================================================================

// globalFlags are shared by every command.
type globalFlags struct {
	settingsPath    string
	logLevel        string
	logFormat       string
	allowMissingKey bool
}

// app holds what every command needs once flags are parsed.
type app struct {
	settings  *config.Settings
	logger    zerolog.Logger
	completer chat.Completer
}

// bootstrap loads settings, configures logging and builds the model client.
// A missing API key is fatal unless allowMissingKey is set, in which case the
// hosts start without a client and report every turn as failed.
func bootstrap(flags *globalFlags, stderr io.Writer) (*app, error) {
	settings, err := config.LoadSettings(flags.settingsPath)
	if err != nil {
		return nil, &CommandError{Command: "misterio", Reason: "settings", Code: ExitConfigError, Err: err}
	}
	if flags.logLevel != "" {
		settings.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		settings.Logging.Format = flags.logFormat
	}

	logger, err := logging.Setup(logging.Options{
		Level:  settings.Logging.Level,
		Format: settings.Logging.Format,
		Output: stderr,
	})
	if err != nil {
		return nil, &CommandError{Command: "misterio", Reason: "logging setup", Code: ExitConfigError, Err: err}
	}

	a := &app{settings: settings, logger: logger}

	client, err := groq.CreateClient(
		secrets.Default(settings.Paths.Secrets),
		settings.Groq.SecretKey,
		groq.WithBaseURL(settings.Groq.BaseURL),
		groq.WithLogger(logger),
	)
	if err != nil {
		var authErr *groq.AuthConfigurationError
		if !errors.As(err, &authErr) || !flags.allowMissingKey {
			return nil, err
		}
		logger.Warn().Err(err).Msg("starting without a model client")
		return a, nil
	}
	a.completer = chat.NewCompleter(client)
	return a, nil
}

// themeWatcher builds the hot-reloading theme source from settings.
func (a *app) themeWatcher() *config.Watcher {
	w := config.NewWatcher(a.settings.Paths.Theme)
	if adv := w.Current().Advisory(); adv != "" {
		a.logger.Warn().Str("path", a.settings.Paths.Theme).Msg(adv)
	}
	return w
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// =============================================================================
// COMMANDS
// =============================================================================

// NewRootCommand builds the misterio command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "misterio",
		Short: "El Chatbot llamado 'Misterio', funciona con Groq",
		Long: `misterio is a small chat front end for the Groq API.

With no subcommand it starts the web host. The API key is read from the
CLAVE_API secret: the environment first, then .streamlit/secrets.toml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	root.PersistentFlags().StringVar(&flags.settingsPath, "config", config.DefaultSettingsPath, "Settings file (optional)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format (auto, console, json)")
	root.PersistentFlags().BoolVar(&flags.allowMissingKey, "allow-missing-key", false, "Start even when the API key secret is absent")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{msg: err.Error()}
	})

	serve := newServeCommand(flags)
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newChatCommand(flags), newVersionCommand())
	return root
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	var addr string
	var sweep time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				a.settings.Server.Addr = addr
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			srv := server.New(server.Options{
				Addr:          a.settings.Server.Addr,
				Completer:     a.completer,
				Sessions:      session.NewStore(session.Config{IdleTimeout: a.settings.SessionIdleTimeout()}),
				Theme:         a.themeWatcher(),
				SecureCookies: a.settings.Server.SecureCookies,
				SweepInterval: sweep,
				Version:       Version,
				Logger:        &a.logger,
			})
			if err := srv.Run(ctx); err != nil {
				return &CommandError{Command: "serve", Reason: "web host stopped", Err: err}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from settings, 127.0.0.1:8501)")
	cmd.Flags().DurationVar(&sweep, "sweep-interval", server.DefaultSweepInterval, "How often idle sessions are ended")
	return cmd
}

func newChatCommand(flags *globalFlags) *cobra.Command {
	var modelID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isTTY() {
				return usageError{msg: "chat needs an interactive terminal; use serve instead"}
			}
			a, err := bootstrap(flags, io.Discard)
			if err != nil {
				return err
			}

			st := session.NewState()
			if modelID != "" {
				st.SelectModel(modelID)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return tui.Run(ctx, tui.Options{
				Completer: a.completer,
				Theme:     a.themeWatcher(),
				State:     st,
				Logger:    &a.logger,
			})
		},
	}
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "Initial model")
	return cmd
}

// VersionData is the version --json payload.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func newVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(VersionData{
					Version:   Version,
					GitCommit: GitCommit,
					BuildDate: BuildDate,
					GoVersion: runtime.Version(),
				})
			}
			fmt.Fprintf(out, "misterio version %s\n", Version)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  Build date: %s\n", BuildDate)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// =============================================================================
// ENTRY POINT
// =============================================================================

// Execute runs the command line and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitCode(err)
	}
	return ExitSuccess
}
