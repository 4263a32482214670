package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quicklabel/internal/format"
	"quicklabel/internal/store"
)

func newHistoryCmd(app *App) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history DIR",
		Short: "Show the action history of a session, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := store.ForWorkingDir(strings.TrimSpace(args[0]))
			events, err := st.ReadHistory(cmd.Context(), limit)
			if err != nil {
				return writeErr(cmd, err)
			}
			if asJSON {
				return format.WriteJSON(cmd.OutOrStdout(), events, true)
			}
			for _, ev := range events {
				line := fmt.Sprintf("%s  %-14s", ev.At.Format("2006-01-02 15:04:05"), ev.Action)
				if ev.ImageID != "" {
					line += "  " + ev.ImageID
				}
				if ev.Details != "" {
					line += "  (" + ev.Details + ")"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}
