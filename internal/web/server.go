// Package web serves the REST API and the websocket sync endpoint for one
// labeling session.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"quicklabel/internal/session"
	"quicklabel/internal/ws"
)

//go:embed static/index.html
var assetsFS embed.FS

type ServerConfig struct {
	Addr    string
	Session *session.Store
	Log     *slog.Logger
}

type Server struct {
	cfg     ServerConfig
	session *session.Store
	hub     *ws.Hub
	log     *slog.Logger
}

func NewServer(cfg ServerConfig) (*Server, error) {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Session == nil {
		return nil, errors.New("web: session is nil")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		session: cfg.Session,
		hub:     ws.NewHub(cfg.Log),
		log:     cfg.Log,
	}
	return s, nil
}

// Hub exposes the broadcaster, mainly for tests and shutdown.
func (s *Server) Hub() *ws.Hub { return s.hub }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleHome)
	mux.HandleFunc("GET /ws", s.handleWS)

	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/classes", s.handleClasses)
	mux.HandleFunc("GET /api/images", s.handleImages)
	mux.HandleFunc("GET /api/images/{imageId...}", s.handleImageFile)

	mux.HandleFunc("POST /api/label", s.handleLabel)
	mux.HandleFunc("POST /api/delete", s.handleDelete)
	mux.HandleFunc("POST /api/undo", s.handleUndo)
	mux.HandleFunc("POST /api/navigate", s.handleNavigate)

	mux.HandleFunc("GET /api/changes/preview", s.handleChangesPreview)
	mux.HandleFunc("POST /api/changes/commit", s.handleChangesCommit)
	mux.HandleFunc("GET /api/changes/count", s.handleChangesCount)
	mux.HandleFunc("GET /api/changes/diff", s.handleChangesDiff)

	mux.HandleFunc("GET /api/subfolders", s.handleSubfolders)
	mux.HandleFunc("POST /api/navigate/folder", s.handleNavigateFolder)
	mux.HandleFunc("GET /api/breadcrumbs", s.handleBreadcrumbs)
	mux.HandleFunc("GET /api/format", s.handleFormat)

	mux.HandleFunc("GET /api/session/info", s.handleSessionInfo)
	mux.HandleFunc("POST /api/session/clear", s.handleSessionClear)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.Count(),
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := assetsFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "missing asset", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// errStatus maps session errors onto HTTP status codes.
func errStatus(err error) int {
	if errors.Is(err, session.ErrNothingToUndo) {
		return http.StatusBadRequest
	}
	var invImg session.InvalidImageError
	var invClass session.InvalidClassError
	var stale session.StaleUndoError
	switch {
	case errors.As(err, &invImg):
		return http.StatusNotFound
	case errors.As(err, &invClass):
		return http.StatusBadRequest
	case errors.As(err, &stale):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
