package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quicklabel/internal/catalog"
	"quicklabel/internal/session"
	"quicklabel/internal/web"
)

func newServeCmd(app *App) *cobra.Command {
	var classesRaw string
	var addr string
	var open bool

	cmd := &cobra.Command{
		Use:   "serve DIR",
		Short: "Serve a labeling session for a directory of images",
		Args:  cobra.ExactArgs(1),
		Example: strings.TrimSpace(`
  # Two classes, default address
  quicklabel serve ./photos --classes cat,dog

  # Bind a specific port and open the browser
  quicklabel serve ./photos --classes good,bad,blurry --addr :9000 --open
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := strings.TrimSpace(args[0])

			if problems := catalog.ValidateRoot(dir); len(problems) > 0 {
				return writeErr(cmd, fmt.Errorf("cannot serve %s: %s", dir, strings.Join(problems, "; ")))
			}
			classes, err := parseClasses(classesRaw)
			if err != nil {
				return writeErr(cmd, err)
			}

			sess, err := session.New(dir, classes, slog.Default())
			if err != nil {
				return writeErr(cmd, err)
			}

			srv, err := web.NewServer(web.ServerConfig{
				Addr:    addr,
				Session: sess,
				Log:     slog.Default(),
			})
			if err != nil {
				return writeErr(cmd, err)
			}

			ln, err := net.Listen("tcp", strings.TrimSpace(addr))
			if err != nil {
				return writeErr(cmd, fmt.Errorf("cannot listen on %s: %w", addr, err))
			}

			url := "http://" + ln.Addr().String() + "/"
			fmt.Fprintf(cmd.ErrOrStderr(), "quicklabel serving %s at %s (%d classes)\n", dir, url, len(classes))
			if open {
				if err := openPath(url); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed to open browser: %v\n", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			httpSrv := &http.Server{
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				srv.Hub().CloseAll()
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return httpSrv.Shutdown(sctx)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return writeErr(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&classesRaw, "classes", envOr("QUICKLABEL_CLASSES", ""), "Comma-separated class names (1-10)")
	cmd.Flags().StringVar(&addr, "addr", envOr("QUICKLABEL_ADDR", "127.0.0.1:8000"), "Bind address (host:port or :port)")
	cmd.Flags().BoolVar(&open, "open", false, "Open the UI in your default browser")
	return cmd
}
