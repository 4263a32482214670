package web

import (
	"net/http"
	"os"

	"quicklabel/internal/catalog"
	"quicklabel/internal/ws"
)

type labelRequest struct {
	ImageID    string `json:"image_id"`
	ClassIndex int    `json:"class_index"`
}

type deleteRequest struct {
	ImageID string `json:"image_id"`
}

type navigateRequest struct {
	Direction string `json:"direction"`
	Index     int    `json:"index,omitempty"`
}

type folderRequest struct {
	Folder string `json:"folder"`
}

// doLabel stages a label and broadcasts the result to every replica, the
// originator included.
func (s *Server) doLabel(imageID string, classIndex int) (ws.ImageLabeled, error) {
	name, err := s.session.Label(imageID, classIndex)
	if err != nil {
		return ws.ImageLabeled{}, err
	}
	img, _ := s.session.ImageByID(imageID)
	p := ws.ImageLabeled{
		ImageID:    imageID,
		ClassIndex: classIndex,
		ClassName:  name,
		Image:      img,
		Stats:      s.session.Stats(),
	}
	s.hub.Broadcast(ws.TypeImageLabeled, p)
	return p, nil
}

func (s *Server) doDelete(imageID string) (ws.ImageDeleted, error) {
	if err := s.session.Delete(imageID); err != nil {
		return ws.ImageDeleted{}, err
	}
	img, _ := s.session.ImageByID(imageID)
	p := ws.ImageDeleted{ImageID: imageID, Image: img, Stats: s.session.Stats()}
	s.hub.Broadcast(ws.TypeImageDeleted, p)
	return p, nil
}

func (s *Server) doUndo() (ws.UndoCompleted, error) {
	res, err := s.session.Undo()
	if err != nil {
		return ws.UndoCompleted{}, err
	}
	p := ws.UndoCompleted{
		ImageID:      res.ImageID,
		UndoneAction: string(res.UndoneKind),
		Description:  res.Description,
		Image:        res.Image,
		Stats:        s.session.Stats(),
	}
	s.hub.Broadcast(ws.TypeUndoCompleted, p)
	return p, nil
}

func (s *Server) doCommit(r *http.Request) ws.ChangesCommitted {
	result := s.session.Commit(r.Context())
	p := ws.ChangesCommitted{Result: result, Stats: s.session.Stats()}
	s.hub.Broadcast(ws.TypeChangesCommitted, p)
	return p
}

func (s *Server) doNavigate(direction string, index int) int {
	cur := s.session.Navigate(direction, index)
	s.hub.Broadcast(ws.TypeStateUpdate, s.session.Snapshot())
	return cur
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Stats())
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"classes": s.session.Classes()})
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"images":        snap.Images,
		"total":         len(snap.Images),
		"current_index": snap.CurrentIndex,
	})
}

// handleImageFile streams the image bytes. The id is validated against the
// working directory before any filesystem access.
func (s *Server) handleImageFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("imageId")
	if err := catalog.ValidateID(id, s.session.Root()); err != nil {
		jsonError(w, http.StatusNotFound, "image not found")
		return
	}
	path := catalog.Resolve(id, s.session.Root())
	if _, err := os.Stat(path); err != nil {
		jsonError(w, http.StatusNotFound, "image not found")
		return
	}
	w.Header().Set("Content-Type", catalog.MIMEType(id))
	w.Header().Set("Cache-Control", "max-age=3600")
	http.ServeFile(w, r, path)
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.doLabel(req.ImageID, req.ClassIndex)
	if err != nil {
		jsonError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"image_id":    p.ImageID,
		"class_index": p.ClassIndex,
		"class_name":  p.ClassName,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.doDelete(req.ImageID)
	if err != nil {
		jsonError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"image_id": p.ImageID,
	})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	p, err := s.doUndo()
	if err != nil {
		jsonError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"image_id":      p.ImageID,
		"undone_action": p.UndoneAction,
		"description":   p.Description,
	})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cur := s.doNavigate(req.Direction, req.Index)
	writeJSON(w, http.StatusOK, map[string]any{"current_index": cur})
}

func (s *Server) handleChangesPreview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Preview())
}

func (s *Server) handleChangesCommit(w http.ResponseWriter, r *http.Request) {
	p := s.doCommit(r)
	writeJSON(w, http.StatusOK, p.Result)
}

func (s *Server) handleChangesCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.ChangeCount())
}

func (s *Server) handleChangesDiff(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.ChangeDiff())
}

func (s *Server) handleSubfolders(w http.ResponseWriter, r *http.Request) {
	list, err := s.session.Subfolders()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleNavigateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	crumbs, count, err := s.session.NavigateFolder(req.Folder)
	if err != nil {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current_folder": s.session.CurrentFolder(),
		"breadcrumbs":    crumbs,
		"image_count":    count,
	})
}

func (s *Server) handleBreadcrumbs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"breadcrumbs": catalog.Breadcrumbs(s.session.CurrentFolder()),
	})
}

func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.DetectFormat(s.session.Root()))
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.SessionInfo())
}

func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ClearSession(); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.hub.Broadcast(ws.TypeStateUpdate, s.session.Snapshot())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
