package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quicklabel/internal/docs"
)

func newDocsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "docs [topic]",
		Short: "Show built-in documentation (keys, workflow, sync)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "topics: "+strings.Join(docs.Topics(), ", "))
				return nil
			}
			body, ok := docs.Get(args[0])
			if !ok {
				return writeErr(cmd, fmt.Errorf("unknown topic %q (try: %s)", args[0], strings.Join(docs.Topics(), ", ")))
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(body))
			return nil
		},
	}
}
