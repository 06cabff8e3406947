package cli

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"livetodo/internal/client"
	"livetodo/internal/patch"
	"livetodo/internal/tree"
	"livetodo/internal/tui"

	"github.com/spf13/cobra"
)

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Interactive view of the live tree with a todo form",
		Long: strings.TrimSpace(`
Connect to the patch WebSocket, mirror the tree it streams and show it next
to a form that creates todos on the backend.

Logs are discarded unless --log-file is set.
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := app.logger(cmd, true)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer app.closeLog()

			store := tree.NewStore()
			err = tui.Run(cmd.Context(), tui.Options{
				Store:    store,
				Creator:  client.NewAPI(app.cfg.BackendURL),
				Listener: client.NewListener(app.cfg.WSURL, store, logger),
				Backend:  app.cfg.BackendURL,
				Log:      logger,
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
}

func newAddCmd(app *App) *cobra.Command {
	var title string
	var user string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create one todo on the backend",
		Example: strings.TrimSpace(`
livetodo add --title "walk dog" --user 1
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := todoRequestFromFlags(title, user)
			if err != nil {
				return writeErr(cmd, err)
			}
			logger, err := app.logger(cmd, false)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer app.closeLog()

			api := client.NewAPI(app.cfg.BackendURL)
			res, err := api.CreateTodo(cmd.Context(), req)
			if err != nil {
				return writeErr(cmd, errBackend(app.cfg.BackendURL, err))
			}
			logger.Debug("todo created", "title", req.Title, "user", req.UserID)
			return writeOut(cmd, app, map[string]any{
				"data": res,
				"_hints": []string{
					"livetodo tail",
				},
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Todo title (required)")
	cmd.Flags().StringVar(&user, "user", "", "Owning user id, an integer (required)")
	return cmd
}

// todoRequestFromFlags reads both flags before validating either.
func todoRequestFromFlags(title, user string) (client.TodoRequest, error) {
	title = strings.TrimSpace(title)
	user = strings.TrimSpace(user)
	if title == "" {
		return client.TodoRequest{}, errUsage("title", "required")
	}
	if user == "" {
		return client.TodoRequest{}, errUsage("user", "required")
	}
	id, err := strconv.Atoi(user)
	if err != nil {
		return client.TodoRequest{}, errUsage("user", "%q is not an integer", user)
	}
	req := client.TodoRequest{Title: title, UserID: id}
	if err := req.Validate(); err != nil {
		return client.TodoRequest{}, errUsage("user", "%v", err)
	}
	return req, nil
}

func newTailCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Print the mirrored tree after every applied patch",
		Long: strings.TrimSpace(`
Connect to the patch WebSocket and print the whole tree after each patch is
applied, one document per patch. Rejected patches are logged to stderr.
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := app.logger(cmd, false)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer app.closeLog()

			store := tree.NewStore()
			l := client.NewListener(app.cfg.WSURL, store, logger)

			var writeErrOnce error
			l.OnApplied = func(m patch.Message) {
				if writeErrOnce != nil {
					return
				}
				writeErrOnce = writeOut(cmd, app, map[string]any{
					"data": map[string]any{
						"patch": patch.Describe(m),
						"rev":   store.Revision(),
						"tree":  store.Snapshot(),
					},
				})
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			err = l.Run(ctx)
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			if err == nil {
				err = writeErrOnce
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
}
