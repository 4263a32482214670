package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"quicklabel/internal/session"
	"quicklabel/internal/ws"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		// Basic same-origin check; good enough for localhost.
		host := strings.TrimSpace(r.Host)
		return strings.Contains(origin, "://"+host)
	},
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
		return
	}

	hello := func() (string, any) {
		return ws.TypeStateUpdate, s.session.Snapshot()
	}
	s.hub.Serve(conn, hello, s.handleWSMessage)
}

// handleWSMessage routes one client envelope. Mutations flow through the
// same operations the REST handlers use, so both surfaces broadcast the
// same deltas; request errors go back to the sender only.
func (s *Server) handleWSMessage(env ws.Envelope, reply func(typ string, payload any)) {
	fail := func(err error) {
		reply(ws.TypeError, ws.ErrorPayload{Message: err.Error(), Code: errCode(err)})
	}

	switch env.Type {
	case ws.TypeLabel:
		var req ws.LabelRequest
		if err := env.DecodePayload(&req); err != nil {
			fail(err)
			return
		}
		if _, err := s.doLabel(req.ImageID, req.ClassIndex); err != nil {
			fail(err)
		}

	case ws.TypeDelete:
		var req ws.DeleteRequest
		if err := env.DecodePayload(&req); err != nil {
			fail(err)
			return
		}
		if _, err := s.doDelete(req.ImageID); err != nil {
			fail(err)
		}

	case ws.TypeUndo:
		if _, err := s.doUndo(); err != nil {
			fail(err)
		}

	case ws.TypeNavigate:
		var req ws.NavigateRequest
		if err := env.DecodePayload(&req); err != nil {
			fail(err)
			return
		}
		s.doNavigate(req.Direction, req.Index)

	case ws.TypeSync:
		// Heartbeat doubles as resync: answer with authoritative state.
		reply(ws.TypeStateUpdate, s.session.Snapshot())

	default:
		reply(ws.TypeError, ws.ErrorPayload{
			Message: "unknown message type: " + env.Type,
			Code:    "unknown_type",
		})
	}
}

func errCode(err error) string {
	switch errStatus(err) {
	case http.StatusNotFound:
		return "invalid_image"
	case http.StatusConflict:
		return "stale_undo"
	case http.StatusBadRequest:
		if errors.Is(err, session.ErrNothingToUndo) {
			return "nothing_to_undo"
		}
		return "invalid_request"
	}
	return "internal"
}
