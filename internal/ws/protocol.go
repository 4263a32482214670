// Package ws implements the websocket sync protocol: JSON envelopes with a
// type tag and payload, fanned out to every connected replica.
package ws

import (
	"encoding/json"
	"fmt"

	"quicklabel/internal/model"
)

// Server to client message types.
const (
	TypeStateUpdate      = "state_update"
	TypeImageLabeled     = "image_labeled"
	TypeImageDeleted     = "image_deleted"
	TypeUndoCompleted    = "undo_completed"
	TypeChangesCommitted = "changes_committed"
	TypeError            = "error"
)

// Client to server message types.
const (
	TypeLabel    = "label"
	TypeDelete   = "delete"
	TypeUndo     = "undo"
	TypeNavigate = "navigate"
	TypeSync     = "sync"
)

// Envelope is the wire frame. Payload shape depends on Type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope wraps a payload value into an envelope.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	env := Envelope{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", typ, err)
		}
		env.Payload = raw
	}
	return env, nil
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a wire frame. Unknown types are the caller's problem;
// malformed JSON is an error here.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("malformed message: missing type")
	}
	return env, nil
}

// DecodePayload unmarshals the payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: bad payload: %w", e.Type, err)
	}
	return nil
}

// LabelRequest asks the server to stage a label.
type LabelRequest struct {
	ImageID    string `json:"image_id"`
	ClassIndex int    `json:"class_index"`
}

// DeleteRequest asks the server to stage a deletion.
type DeleteRequest struct {
	ImageID string `json:"image_id"`
}

// NavigateRequest moves the shared cursor.
type NavigateRequest struct {
	Direction string `json:"direction"`
	Index     int    `json:"index,omitempty"`
}

// ImageLabeled is broadcast after a label is staged.
type ImageLabeled struct {
	ImageID    string      `json:"image_id"`
	ClassIndex int         `json:"class_index"`
	ClassName  string      `json:"class_name"`
	Image      model.Image `json:"image"`
	Stats      model.Stats `json:"stats"`
}

// ImageDeleted is broadcast after a deletion is staged.
type ImageDeleted struct {
	ImageID string      `json:"image_id"`
	Image   model.Image `json:"image"`
	Stats   model.Stats `json:"stats"`
}

// UndoCompleted is broadcast after an undo restores an image.
type UndoCompleted struct {
	ImageID      string      `json:"image_id"`
	UndoneAction string      `json:"undone_action"`
	Description  string      `json:"description"`
	Image        model.Image `json:"image"`
	Stats        model.Stats `json:"stats"`
}

// ChangesCommitted is broadcast after a commit, successful or not.
type ChangesCommitted struct {
	Result model.CommitResult `json:"result"`
	Stats  model.Stats        `json:"stats"`
}

// ErrorPayload is sent only to the replica whose request failed.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
