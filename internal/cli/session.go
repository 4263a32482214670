package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quicklabel/internal/format"
	"quicklabel/internal/store"
)

func newSessionCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or clear the persisted session of a directory",
	}
	cmd.AddCommand(newSessionInfoCmd(app))
	cmd.AddCommand(newSessionClearCmd(app))
	return cmd
}

func newSessionInfoCmd(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info DIR",
		Short: "Show what the persisted session contains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := store.ForWorkingDir(strings.TrimSpace(args[0]))
			sf, err := st.LoadSession()
			if err != nil {
				return writeErr(cmd, err)
			}
			if sf == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no session")
				return nil
			}
			if asJSON {
				return format.WriteJSON(cmd.OutOrStdout(), sf, true)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version:        %s\n", sf.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "directory:      %s\n", sf.WorkingDirectory)
			fmt.Fprintf(cmd.OutOrStdout(), "classes:        %s\n", strings.Join(sf.Classes, ", "))
			fmt.Fprintf(cmd.OutOrStdout(), "images:         %d\n", len(sf.Images))
			fmt.Fprintf(cmd.OutOrStdout(), "staged changes: %d\n", len(sf.StagedChanges))
			fmt.Fprintf(cmd.OutOrStdout(), "undo depth:     %d\n", len(sf.UndoStack))
			fmt.Fprintf(cmd.OutOrStdout(), "updated:        %s\n", sf.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newSessionClearCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear DIR",
		Short: "Back up and remove the persisted session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := store.ForWorkingDir(strings.TrimSpace(args[0]))
			if !st.SessionFileExists() {
				fmt.Fprintln(cmd.OutOrStdout(), "no session to clear")
				return nil
			}
			backup, err := st.BackupSession()
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := st.ClearSessionFile(); err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session cleared (backup: %s)\n", backup)
			return nil
		},
	}
}
