package cli

import (
	"fmt"
	"strings"

	"livetodo/internal/docs"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

func newDocsCmd(app *App) *cobra.Command {
	var width int

	cmd := &cobra.Command{
		Use:   "docs [topic]",
		Short: "Print reference pages (protocol, api, config)",
		Long: strings.TrimSpace(`
Print an embedded reference page. With --format text the page is rendered
for the terminal; otherwise it is returned as raw markdown in the JSON
envelope.
`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return writeOut(cmd, app, map[string]any{"data": docs.Topics()})
			}
			topic := strings.ToLower(strings.TrimSpace(args[0]))
			body, ok := docs.Get(topic)
			if !ok {
				return writeErr(cmd, fmt.Errorf("unknown topic %q (have: %s)", args[0], strings.Join(docs.Topics(), ", ")))
			}
			if app.Format != "text" {
				return writeOut(cmd, app, map[string]any{
					"data": map[string]any{"topic": topic, "markdown": body},
				})
			}
			out, err := renderMarkdown(body, width)
			if err != nil {
				return writeErr(cmd, err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().IntVar(&width, "width", 80, "Wrap width for rendered pages")
	return cmd
}

func renderMarkdown(md string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}
