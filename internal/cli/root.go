package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"livetodo/internal/config"
	"livetodo/internal/format"
	"livetodo/internal/logging"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

type App struct {
	ConfigPath string
	BackendURL string
	WSURL      string
	LogLevel   string
	LogFormat  string
	LogFile    string
	PrettyJSON bool
	Format     string

	cfg      config.Config
	logClose func() error
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "livetodo",
		Short:        "Live todo client and backend",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Watch the live tree and add todos interactively
  livetodo watch

  # Scriptable commands
  livetodo add --title "walk dog" --user 1
  livetodo tail --format text

  # Run the backend (API, WebSocket and browser UI) on :8000
  livetodo serve --db ~/.livetodo/todos.sqlite
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := app.loadConfig(); err != nil {
			return writeErr(cmd, err)
		}
		return nil
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		app.closeLog()
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr("LIVETODO_CONFIG", ""), "Path to config.toml (default: ~/.livetodo/config.toml)")
	cmd.PersistentFlags().StringVar(&app.BackendURL, "backend", "", "Backend HTTP base URL (default: "+config.DefaultBackendURL+")")
	cmd.PersistentFlags().StringVar(&app.WSURL, "ws", "", "Patch WebSocket URL (default: "+config.DefaultWSURL+")")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&app.LogFormat, "log-format", "", "Log format (text|json|logfmt)")
	cmd.PersistentFlags().StringVar(&app.LogFile, "log-file", "", "Write logs to this file (watch logs nowhere otherwise)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("LIVETODO_FORMAT", "json"), "Output format (json|text)")

	cmd.AddCommand(newWatchCmd(app))
	cmd.AddCommand(newAddCmd(app))
	cmd.AddCommand(newTailCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newDocsCmd(app))

	return cmd
}

// loadConfig resolves defaults, file and env, then applies flags on top.
func (app *App) loadConfig() error {
	cfg, err := config.Load(app.ConfigPath)
	if err != nil {
		return err
	}
	override := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	override(&cfg.BackendURL, app.BackendURL)
	override(&cfg.WSURL, app.WSURL)
	override(&cfg.Log.Level, app.LogLevel)
	override(&cfg.Log.Format, app.LogFormat)
	override(&cfg.Log.File, app.LogFile)
	if err := cfg.Validate(); err != nil {
		return err
	}
	app.cfg = cfg
	return nil
}

// logger builds the command logger. Interactive commands own the terminal,
// so they only log when a log file is configured.
func (app *App) logger(cmd *cobra.Command, interactive bool) (*log.Logger, error) {
	opts := logging.Options{
		Level:           app.cfg.Log.Level,
		Format:          app.cfg.Log.Format,
		ReportTimestamp: true,
	}
	if path := strings.TrimSpace(app.cfg.Log.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		app.logClose = f.Close
		return logging.New(f, opts), nil
	}
	if interactive {
		return logging.Discard(), nil
	}
	var w io.Writer = cmd.ErrOrStderr()
	return logging.New(w, opts), nil
}

func (app *App) closeLog() {
	if app.logClose != nil {
		_ = app.logClose()
		app.logClose = nil
	}
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
