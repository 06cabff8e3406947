package cli

import (
	"net/http"
	"strings"
	"time"

	"livetodo/internal/config"
	"livetodo/internal/live"
	"livetodo/internal/model"
	"livetodo/internal/server"
	"livetodo/internal/store"
	"livetodo/internal/web"

	"github.com/spf13/cobra"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string
	var dbPath string
	var user int
	var pending bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the todo backend and browser UI",
		Long: strings.TrimSpace(`
Serve the todo API, the patch WebSocket (/ws) and a browser UI (/).

Without --db todos live in memory and are lost on exit. With --user the
WebSocket and UI stream only that user's todos; with --pending completed
todos drop out of the stream.
`),
		Example: strings.TrimSpace(`
livetodo serve --addr 127.0.0.1:8000
livetodo serve --db ~/.livetodo/todos.sqlite --user 1
livetodo serve --pending
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger, err := app.logger(cmd, false)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer app.closeLog()

			cfg := app.cfg.Server
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("db") {
				cfg.DB = dbPath
			}
			if cmd.Flags().Changed("user") {
				cfg.User = user
			}
			if cmd.Flags().Changed("pending") {
				cfg.Pending = pending
			}
			if strings.TrimSpace(cfg.Addr) == "" {
				return writeErr(cmd, errUsage("addr", "required"))
			}

			var seed []model.Todo
			var opts []live.TableOption
			if p := strings.TrimSpace(cfg.DB); p != "" {
				db, err := store.Open(ctx, p)
				if err != nil {
					return writeErr(cmd, err)
				}
				defer db.Close()
				seed, err = db.Load(ctx)
				if err != nil {
					return writeErr(cmd, err)
				}
				opts = append(opts, live.WithPersister(db))
				logger.Info("loaded todos", "db", db.Path(), "count", len(seed))
			}
			table := live.NewTable(seed, opts...)

			api := server.New(table, server.Config{Addr: cfg.Addr, User: cfg.User, Pending: cfg.Pending, Log: logger})
			defer api.Close()
			queryName := api.QueryName()
			ui, err := web.NewServer(table, api.Entries(), web.ServerConfig{
				DatastarJS: cfg.DatastarJS,
				QueryName:  queryName,
				Log:        logger,
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer ui.Close()

			mux := http.NewServeMux()
			api.Register(mux)
			ui.Register(mux)

			url := "http://" + displayAddr(cfg.Addr) + "/"
			_ = writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"addr":      cfg.Addr,
					"url":       url,
					"ws":        "ws://" + displayAddr(cfg.Addr) + "/ws",
					"db":        cfg.DB,
					"query":     queryName,
					"todos":     table.Len(),
					"startedAt": time.Now().UTC().Format(time.RFC3339Nano),
				},
				"_hints": []string{"open " + url},
			})

			if err := api.ListenAndServe(ctx, server.WithCORS(mux)); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Bind address (default: config server.addr, "+config.DefaultAddr+")")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file for todos (empty keeps them in memory)")
	cmd.Flags().IntVar(&user, "user", -1, "Only stream this user's todos (-1 streams all)")
	cmd.Flags().BoolVar(&pending, "pending", false, "Only stream todos that are not completed")
	return cmd
}

// displayAddr turns a bind address into something a browser can open.
func displayAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	switch {
	case strings.HasPrefix(addr, ":"):
		return "localhost" + addr
	case strings.HasPrefix(addr, "0.0.0.0:"):
		return "localhost" + strings.TrimPrefix(addr, "0.0.0.0")
	default:
		return addr
	}
}
