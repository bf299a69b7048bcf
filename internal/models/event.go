package models

import "encoding/json"

// Relay events form the closed vocabulary the server emits to the browser,
// independent of the provider's internal event naming. Exactly three kinds
// reach the wire; anything else from upstream is ignored before this layer.

type EventKind string

const (
	EventDelta EventKind = "delta"
	EventMeta  EventKind = "meta"
	EventError EventKind = "error"
)

// StreamTerminator closes every relayed stream.
const StreamTerminator = "[DONE]"

type RelayEvent struct {
	Event         EventKind `json:"event"`
	TextDelta     string    `json:"textDelta,omitempty"`
	ThreadID      string    `json:"threadId,omitempty"`
	FileIDs       []string  `json:"fileIds,omitempty"`
	FilesUploaded *int      `json:"filesUploaded,omitempty"`
	Error         string    `json:"error,omitempty"`
}

func DeltaEvent(text string) RelayEvent {
	return RelayEvent{Event: EventDelta, TextDelta: text}
}

// MetaEvent trails a successful turn with the continuity state the client
// must replay on its next request. filesUploaded is always present, zero
// included.
func MetaEvent(threadID string, fileIDs []string, filesUploaded int) RelayEvent {
	if fileIDs == nil {
		fileIDs = []string{}
	}
	return RelayEvent{Event: EventMeta, ThreadID: threadID, FileIDs: fileIDs, FilesUploaded: &filesUploaded}
}

func ErrorEvent(msg string) RelayEvent {
	return RelayEvent{Event: EventError, Error: msg}
}

func (e RelayEvent) Encode() []byte {
	data, _ := json.Marshal(e)
	return data
}
