/*
Package collab contains the core logic of the real-time collaboration server.

This file defines the Session struct, representing one active WebSocket connection.
It manages the connection lifecycle, the read and write pumps, per-session content
throttling and payload validation before events reach a room.
*/
package collab

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"coedit/internal/app/metrics"
	"coedit/internal/pkg/errs"
	"coedit/internal/pkg/logx"
)

const (
	// timeout for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	// Sized to fit a full content replace plus envelope overhead.
	maxMessageSize = 256 * 1024

	// MaxContentLength is the maximum content length in characters.
	MaxContentLength = 50000

	// MaxCommentLength is the maximum comment body length in characters.
	MaxCommentLength = 1000

	// ContentThrottleInterval is the minimum spacing between accepted content
	// submissions from one session. Submissions inside the interval are dropped
	// silently; normal typing cadence never hits it.
	ContentThrottleInterval = 100 * time.Millisecond

	// WsCloseCodeSessionReplaced is a custom WebSocket Close Code (4000-4999
	// range) signaling that the session was replaced by a newer connection.
	WsCloseCodeSessionReplaced = 4001
)

// Session represents one active WebSocket connection and its authenticated identity.
type Session struct {
	// underlying WebSocket connection object.
	conn *websocket.Conn

	// identity attached by the connection gatekeeper.
	identity Identity

	// manager used to resolve join-room requests.
	manager *Manager

	// room the session currently belongs to, nil when none.
	// Owned exclusively by the session's read goroutine.
	room *Room

	// lastContentAt is the timestamp of the last accepted content submission.
	// Owned exclusively by the session's read goroutine.
	lastContentAt time.Time

	// buffered channel of frames waiting to be written to the client.
	send chan []byte

	// kick carries at most one close frame for the write pump to deliver, so
	// the room loop never writes to the connection directly.
	kick chan []byte

	// closeSendOnce guards the close of the send channel; it may be triggered by
	// the room loop (disconnect while joined) or by the session itself.
	closeSendOnce sync.Once

	metrics *metrics.Registry

	// structured logger with session context.
	logger zerolog.Logger
}

// NewSession constructs a Session for an upgraded, authenticated connection.
func NewSession(conn *websocket.Conn, identity Identity, manager *Manager, met *metrics.Registry) *Session {
	sessionLogger := logx.Logger().With().
		Str("user_id", identity.ID).
		Logger()

	return &Session{
		conn:     conn,
		identity: identity,
		manager:  manager,
		send:     make(chan []byte, 256),
		kick:     make(chan []byte, 1),
		metrics:  met,
		logger:   sessionLogger,
	}
}

// Identity returns the identity attached to the session.
func (s *Session) Identity() Identity {
	return s.identity
}

// ReadPump reads frames from the WebSocket connection until it closes.
// It maintains the Pong heartbeat deadline and performs cleanup on exit.
func (s *Session) ReadPump() {
	defer s.cleanupOnDisconnect()

	s.conn.SetReadLimit(maxMessageSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("Error reading message (client close/going away)")
			}
			break
		}

		s.processInbound(messageBytes)
	}
}

// cleanupOnDisconnect releases the session's resources when the read pump exits:
// presence is flipped offline in the current room and the connection is closed.
// Outstanding asynchronous persistence operations are left to complete on their own.
func (s *Session) cleanupOnDisconnect() {
	s.logger.Info().Msg("Session cleanup starting.")

	if s.room != nil {
		s.room.DisconnectSession(s)
	} else {
		s.closeSend()
	}

	if err := s.conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Session connection close error")
	}

	s.metrics.ConnClosed()
}

// closeSend closes the send channel exactly once.
func (s *Session) closeSend() {
	s.closeSendOnce.Do(func() {
		close(s.send)
	})
}

// processInbound parses a raw client frame and dispatches it by event type.
func (s *Session) processInbound(messageBytes []byte) {
	s.metrics.MessageReceived()

	var event Event
	if err := json.Unmarshal(messageBytes, &event); err != nil {
		s.logger.Warn().Err(err).Msg("Session sent invalid JSON")
		return
	}

	switch event.Type {
	case EventJoinRoom:
		s.handleJoinRoom(event.Payload)

	case EventContentChange:
		s.handleContentChange(event.Payload)

	case EventNewComment:
		s.handleNewComment(event.Payload)

	case EventResolveComment:
		s.handleResolveComment(event.Payload)

	case EventUserActivity:
		s.handleUserActivity(event.Payload)

	default:
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Session sent unsupported event type")
	}
}

// handleJoinRoom validates the join payload and hands the room transition to the
// manager. Leaving the previous room and joining the new one happen back to back
// on this goroutine, so the session is never observed in two rooms.
func (s *Session) handleJoinRoom(payloadBytes json.RawMessage) {
	var payload JoinRoomPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		s.logger.Warn().Err(err).Msg("Session sent invalid join-room payload")
		s.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	if payload.ContentID == "" || payload.ContentType == "" {
		s.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	s.manager.JoinRoom(s, payload.ContentType, payload.ContentID)
}

// handleContentChange applies the not-in-room check, the per-session throttle and
// the length validation before forwarding the submission to the room loop.
func (s *Session) handleContentChange(payloadBytes json.RawMessage) {
	if s.room == nil {
		s.SendError(errs.NewError(errs.ErrNotInRoom))
		return
	}

	now := time.Now()
	if now.Sub(s.lastContentAt) < ContentThrottleInterval {
		// Silent drop: throttling is invisible at normal typing cadence.
		return
	}
	s.lastContentAt = now

	var payload ContentChangePayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		s.logger.Warn().Err(err).Msg("Session sent invalid content-change payload")
		s.SendError(errs.NewError(errs.ErrInvalidContent))
		return
	}

	if utf8.RuneCountInString(payload.Content) > MaxContentLength {
		s.SendError(errs.NewError(errs.ErrInvalidContent))
		return
	}

	s.room.Submit(s, EventContentChange, payload)
}

// handleNewComment validates membership and body length, then forwards to the room.
func (s *Session) handleNewComment(payloadBytes json.RawMessage) {
	if s.room == nil {
		s.SendError(errs.NewError(errs.ErrNotInRoom))
		return
	}

	var payload CommentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		s.logger.Warn().Err(err).Msg("Session sent invalid new-comment payload")
		s.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	if utf8.RuneCountInString(payload.Content) > MaxCommentLength {
		s.SendError(errs.NewError(errs.ErrCommentTooLong))
		return
	}

	s.room.Submit(s, EventNewComment, payload)
}

// handleResolveComment validates membership and forwards to the room.
func (s *Session) handleResolveComment(payloadBytes json.RawMessage) {
	if s.room == nil {
		s.SendError(errs.NewError(errs.ErrNotInRoom))
		return
	}

	var payload ResolveCommentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil || payload.CommentID == "" {
		s.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	s.room.Submit(s, EventResolveComment, payload)
}

// handleUserActivity validates membership and forwards the presence update.
// Activity is not throttled here; the client UI is expected to debounce.
func (s *Session) handleUserActivity(payloadBytes json.RawMessage) {
	if s.room == nil {
		s.SendError(errs.NewError(errs.ErrNotInRoom))
		return
	}

	var payload ActivityPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		s.logger.Warn().Err(err).Msg("Session sent invalid user-activity payload")
		s.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	s.room.Submit(s, EventUserActivity, payload)
}

// WritePump writes frames from the send channel to the WebSocket connection and
// keeps the Ping heartbeat alive.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Session connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-s.send:
			if !s.writeQueuedMessage(message, ok) {
				return
			}

		case closeMessage := <-s.kick:
			s.writeCloseMessage(closeMessage)
			return

		case <-ticker.C:
			if !s.writePingMessage() {
				return
			}
		}
	}
}

// writeCloseMessage delivers a queued close frame; the write pump terminates
// afterwards and its deferred conn.Close unblocks the read pump.
func (s *Session) writeCloseMessage(closeMessage []byte) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline on close")
		return
	}

	if err := s.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
		s.logger.Debug().Err(err).Msg("Error writing close message")
	}
}

// writeQueuedMessage writes one queued frame to the connection.
// Returns false when the write pump should terminate.
func (s *Session) writeQueuedMessage(message []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			s.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		s.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic Ping to maintain the connection heartbeat.
// Returns false when the write pump should terminate.
func (s *Session) writePingMessage() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.logger.Info().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// enqueue queues a marshaled frame for delivery to the client.
// A full send queue drops the frame rather than blocking the room loop.
func (s *Session) enqueue(messageBytes []byte) error {
	select {
	case s.send <- messageBytes:
		s.metrics.MessageSent()
		return nil
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("Session send channel full, dropping frame")
		return errors.New("session send queue full")
	}
}

// sendEvent marshals and queues an outbound frame for this session only.
func (s *Session) sendEvent(eventType EventType, payload any) error {
	messageBytes, err := MarshalEvent(eventType, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("Error marshaling outbound frame")
		return err
	}

	return s.enqueue(messageBytes)
}

// SendError reports a per-event error back to the originating session only and
// increments the error counter. Other participants never observe it.
func (s *Session) SendError(err error) {
	s.metrics.ErrorOccurred()

	var code int
	var message string

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		code = customErr.Code
		message = customErr.Message
	} else {
		code = errs.ErrUnknown
		message = "Internal server error."
	}

	if sendErr := s.sendEvent(EventError, ErrorPayload{Code: code, Message: message}); sendErr != nil {
		s.logger.Warn().Err(sendErr).Msg("Failed to queue error event")
	}
}

// Kick asks the write pump to close the connection with a custom WebSocket
// Close Frame (code 4001), used when a newer connection replaces this one.
// The frame goes through the kick channel because only the write pump may
// write to the connection.
func (s *Session) Kick(reason string) {
	s.logger.Warn().
		Int("close_code", WsCloseCodeSessionReplaced).
		Str("reason", reason).
		Msg("Closing session: replaced by new connection.")

	closeMessage := websocket.FormatCloseMessage(WsCloseCodeSessionReplaced, reason)

	select {
	case s.kick <- closeMessage:
	default:
	}
}
