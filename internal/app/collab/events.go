/*
Package collab contains the core logic of the real-time collaboration server:
room actors, participant presence, content synchronization and comments.

This file defines the wire-level event envelope and the payload types exchanged
with clients over the WebSocket connection.
*/
package collab

import (
	"encoding/json"
	"time"

	"coedit/internal/app/store"
)

// EventType identifies an inbound or outbound collaboration event.
type EventType string

// Inbound events (client to server).
const (
	EventJoinRoom       EventType = "join-room"
	EventContentChange  EventType = "content-change"
	EventNewComment     EventType = "new-comment"
	EventResolveComment EventType = "resolve-comment"
	EventUserActivity   EventType = "user-activity"
)

// Outbound events (server to client). EventContentChange, EventNewComment and
// EventUserActivity are reused in both directions.
const (
	EventRoomState       EventType = "room-state"
	EventUserJoined      EventType = "user-joined"
	EventUserLeft        EventType = "user-left"
	EventCommentResolved EventType = "comment-resolved"
	EventError           EventType = "error"
)

// Event is the envelope of an inbound client message. The payload stays raw
// until the event type is known.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outboundFrame is the envelope of a server-to-client message.
type outboundFrame struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// MarshalEvent builds and marshals an outbound frame with the current timestamp.
func MarshalEvent(eventType EventType, payload any) ([]byte, error) {
	return json.Marshal(outboundFrame{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
}

// JoinRoomPayload asks to join the room identified by content kind and id.
type JoinRoomPayload struct {
	ContentID   string `json:"contentId"`
	ContentType string `json:"contentType"`
}

// ContentChangePayload carries a full-content replace submission.
type ContentChangePayload struct {
	Content string `json:"content"`
	Section string `json:"section"`
}

// ContentBroadcastPayload is the outbound form of a content change, stamped with
// the submitting user and server time.
type ContentBroadcastPayload struct {
	Content   string `json:"content"`
	Section   string `json:"section"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// CommentPayload carries a new comment submission. ID is optional; the server
// assigns one when absent.
type CommentPayload struct {
	ID       string `json:"id,omitempty"`
	Content  string `json:"content"`
	Section  string `json:"section"`
	Resolved bool   `json:"resolved,omitempty"`
}

// ResolveCommentPayload asks to mark an existing comment as resolved.
type ResolveCommentPayload struct {
	CommentID string `json:"commentId"`
}

// CommentResolvedPayload is the outbound notification of a resolved comment.
type CommentResolvedPayload struct {
	CommentID  string `json:"commentId"`
	ResolvedBy string `json:"resolvedBy"`
}

// ActivityPayload carries a presence update such as section navigation or a
// typing indication. Never persisted.
type ActivityPayload struct {
	Section  string `json:"section"`
	Activity string `json:"activity"`
}

// ActivityBroadcastPayload is the outbound form of a presence update.
type ActivityBroadcastPayload struct {
	UserID   string `json:"userId"`
	Section  string `json:"section"`
	Activity string `json:"activity"`
}

// RoomStatePayload is the full snapshot pushed to a client on join.
type RoomStatePayload struct {
	RoomID       string          `json:"roomId"`
	Content      string          `json:"content"`
	Comments     []store.Comment `json:"comments"`
	Participants []Participant   `json:"participants"`
	LastActivity int64           `json:"lastActivity"`
}

// ErrorPayload is sent back to the originating session only.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
