// Package cli wires the quicklabel commands.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

type App struct {
	Addr    string
	Classes []string
	Verbose bool
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "quicklabel",
		Short:        "Keyboard-driven image labeling with live multi-client sync",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Serve a folder of images with two classes
  quicklabel serve ./photos --classes cat,dog

  # Attach a terminal client to a running server
  quicklabel tui --server http://127.0.0.1:8000

  # Inspect the action history of a session
  quicklabel history ./photos
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "Enable debug logging")

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if app.Verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	}

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTUICmd(app))
	cmd.AddCommand(newHistoryCmd(app))
	cmd.AddCommand(newSessionCmd(app))
	cmd.AddCommand(newDocsCmd(app))

	return cmd
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}

// parseClasses splits and validates the --classes value: 1 to 10 distinct,
// non-empty names.
func parseClasses(raw string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if seen[strings.ToLower(c)] {
			return nil, fmt.Errorf("duplicate class name: %s", c)
		}
		seen[strings.ToLower(c)] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one class is required")
	}
	if len(out) > 10 {
		return nil, fmt.Errorf("at most 10 classes are supported, got %d", len(out))
	}
	return out, nil
}

func openPath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("empty path")
	}
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Run()
	case "windows":
		return exec.Command("cmd", "/c", "start", "", path).Run()
	default:
		return exec.Command("xdg-open", path).Run()
	}
}
