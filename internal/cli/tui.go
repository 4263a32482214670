package cli

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"quicklabel/internal/tui"
)

func newTUICmd(app *App) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Attach a terminal client to a running quicklabel server",
		Example: strings.TrimSpace(`
  # Connect to the default local server
  quicklabel tui

  # Connect to a server on another port
  quicklabel tui --server http://127.0.0.1:9000
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(cmd.Context(), tui.Config{
				ServerURL: strings.TrimSpace(server),
				Log:       slog.Default(),
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", envOr("QUICKLABEL_SERVER", "http://127.0.0.1:8000"), "Server base URL")
	return cmd
}
