// Package tui is the reference keyboard client: a bubbletea program that
// mirrors the session over the websocket and stages changes with single
// keypresses.
package tui

import (
	"context"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"quicklabel/internal/replica"
)

type Config struct {
	// ServerURL is the HTTP base, e.g. http://127.0.0.1:8000.
	ServerURL string
	Log       *slog.Logger
}

func Run(ctx context.Context, cfg Config) error {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	base := strings.TrimRight(cfg.ServerURL, "/")
	wsURL := strings.Replace(base, "http", "ws", 1) + "/ws"

	rep := replica.New()
	conn := replica.NewConn(replica.ConnConfig{URL: wsURL, Log: cfg.Log}, rep)
	api := newAPIClient(base)
	cache := replica.NewPrefetchCache(replica.DefaultCacheCapacity, api.FetchImage)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := conn.Run(ctx); err != nil && ctx.Err() == nil {
			cfg.Log.Error("connection loop exited", "error", err)
		}
	}()

	m := newAppModel(ctx, rep, conn, cache, api)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
