/*
Package collab contains the core logic of the real-time collaboration server.

This file defines the Room struct, the authoritative holder of one co-edited
document's shared state. Each room runs its own event loop goroutine; every
mutation of room state (join, leave, content replace, comments, presence) is
serialized through that loop, so unrelated rooms never contend with each other.
*/
package collab

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"coedit/internal/app/archive"
	"coedit/internal/app/metrics"
	"coedit/internal/app/store"
	"coedit/internal/pkg/errs"
	"coedit/internal/pkg/logx"
)

const (
	// inboundChannelBuffer sizes the per-room event queue.
	inboundChannelBuffer = 256

	// persistTimeout bounds each detached durable-store call.
	persistTimeout = 5 * time.Second

	// archiveTimeout bounds the final snapshot upload at reap time.
	archiveTimeout = 10 * time.Second
)

// RoomKey builds the composite room identifier from a content kind and id.
func RoomKey(kind, id string) string {
	return kind + "-" + id
}

// inboundSubmission is one validated client event queued to the room loop.
type inboundSubmission struct {
	session   *Session
	eventType EventType
	payload   any
}

// unregisterRequest asks the room loop to detach a session. When remove is true
// the Participant record is removed entirely (explicit leave or room switch);
// otherwise the participant is only flipped offline (disconnect).
type unregisterRequest struct {
	session *Session
	remove  bool
}

// Room is one active collaboration session over a single piece of content.
type Room struct {
	// Key is the composite identifier "{kind}-{id}".
	Key string

	// Kind and ContentID are the typed halves of the persistence key.
	Kind      string
	ContentID string

	// register queues sessions joining the room.
	register chan *Session

	// unregister queues sessions leaving or disconnecting.
	unregister chan unregisterRequest

	// inbound queues validated client submissions.
	inbound chan inboundSubmission

	// reapChan receives reap requests from the registry's sweep loop.
	reapChan chan struct{}

	// stopChan forces the Run loop to terminate immediately.
	stopChan chan struct{}

	// cleanupChan notifies the Manager to drop this room from the registry.
	// Carries the room itself so a stale notification can be told apart from a
	// replacement registered under the same key.
	cleanupChan chan<- *Room

	// mu protects the state fields below for snapshot readers; all writes happen
	// inside the Run loop.
	mu sync.RWMutex

	// sessions holds the live connections, keyed by user id.
	sessions map[string]*Session

	// participants holds presence records, keyed by user id. Offline participants
	// are retained until an explicit leave.
	participants map[string]*Participant

	content      string
	comments     []store.Comment
	createdAt    time.Time
	lastActivity time.Time

	// emptySince is the moment the last live session departed; zero while occupied.
	emptySince time.Time

	store    store.Store
	archiver archive.Archiver
	metrics  *metrics.Registry

	// structured logger with room context.
	logger zerolog.Logger
}

// NewRoom creates a Room seeded with previously persisted state.
func NewRoom(kind, id string, seed *store.DocumentState, cleanupChan chan<- *Room,
	st store.Store, arc archive.Archiver, met *metrics.Registry) *Room {

	key := RoomKey(kind, id)
	roomLogger := logx.Logger().With().
		Str("room_key", key).
		Logger()

	now := time.Now()

	r := &Room{
		Key:          key,
		Kind:         kind,
		ContentID:    id,
		register:     make(chan *Session),
		unregister:   make(chan unregisterRequest),
		inbound:      make(chan inboundSubmission, inboundChannelBuffer),
		reapChan:     make(chan struct{}, 1),
		stopChan:     make(chan struct{}),
		cleanupChan:  cleanupChan,
		sessions:     make(map[string]*Session),
		participants: make(map[string]*Participant),
		createdAt:    now,
		lastActivity: now,
		emptySince:   now,
		store:        st,
		archiver:     arc,
		metrics:      met,
	}
	r.logger = roomLogger

	if seed != nil {
		r.content = seed.Content
		r.comments = append(r.comments, seed.Comments...)
	}

	return r
}

// Run starts the room's event loop. It exits when the room is reaped while empty
// or force-stopped, notifying the Manager for registry cleanup on the way out.
func (r *Room) Run() {
	defer func() {
		r.logger.Info().Msg("Room loop finished. Notifying registry for cleanup.")

		// Closing stopChan unblocks any late register/leave attempt against the
		// dead room; the registry will route a retry to a fresh room.
		r.Stop()

		r.mu.Lock()
		for _, session := range r.sessions {
			session.closeSend()
		}
		r.mu.Unlock()

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logx.Warn("Recovered from panic during registry cleanup notification (channel likely closed).")
				}
			}()

			select {
			case r.cleanupChan <- r:
			default:
				r.logger.Warn().Msg("Registry cleanup channel blocked. Skipping cleanup notification.")
			}
		}()
	}()

	for {
		select {
		case session := <-r.register:
			r.handleRegister(session)

		case req := <-r.unregister:
			r.handleUnregister(req)

		case sub := <-r.inbound:
			r.handleSubmission(sub)

		case <-r.reapChan:
			// Re-validate at reap time: a session may have joined since the
			// sweep observed the room as empty.
			r.mu.RLock()
			occupied := len(r.sessions) > 0
			r.mu.RUnlock()

			if occupied {
				r.logger.Info().Msg("Ignoring stale reap request: room regained occupants.")
				continue
			}

			r.archiveFinalSnapshot()
			r.logger.Info().Msg("Room empty past grace period. Shutting down room loop.")
			return

		case <-r.stopChan:
			r.logger.Info().Msg("Room forced stop initiated.")
			return
		}
	}
}

// Stop terminates the room loop immediately, used during server shutdown.
func (r *Room) Stop() {
	select {
	case <-r.stopChan:
	default:
		close(r.stopChan)
	}
}

// RequestReap asks the room loop to shut down if it is still empty.
// Non-blocking; a pending request is sufficient.
func (r *Room) RequestReap() {
	select {
	case r.reapChan <- struct{}{}:
	default:
	}
}

// RegisterSession queues a session join. The room pushes a full state snapshot to
// the joiner and announces the join to everyone else. Returns false when the room
// loop has already terminated, in which case the caller must retry on a fresh room.
func (r *Room) RegisterSession(session *Session) bool {
	select {
	case r.register <- session:
		return true
	case <-r.stopChan:
		return false
	}
}

// LeaveSession removes the session and its Participant record entirely,
// used when a session switches to a different room.
func (r *Room) LeaveSession(session *Session) {
	select {
	case r.unregister <- unregisterRequest{session: session, remove: true}:
	case <-r.stopChan:
	}
}

// DisconnectSession flips the session's Participant offline and retains the
// record, used when the connection drops.
func (r *Room) DisconnectSession(session *Session) {
	select {
	case r.unregister <- unregisterRequest{session: session, remove: false}:
	case <-r.stopChan:
		session.closeSend()
	}
}

// Submit queues a validated client event for serialized processing.
func (r *Room) Submit(session *Session, eventType EventType, payload any) {
	select {
	case r.inbound <- inboundSubmission{session: session, eventType: eventType, payload: payload}:
	default:
		r.logger.Warn().Str("event_type", string(eventType)).Msg("Room inbound channel full, dropping submission.")
	}
}

// handleRegister upserts the joining user's Participant record, pushes the state
// snapshot to the joiner and broadcasts the join to other participants.
func (r *Room) handleRegister(session *Session) {
	identity := session.Identity()

	r.mu.Lock()

	if existing, ok := r.sessions[identity.ID]; ok && existing != session {
		r.logger.Warn().
			Str("user_id", identity.ID).
			Msg("User already connected to room. Replacing old connection.")
		existing.Kick("Session replaced by a new connection.")
	}

	r.sessions[identity.ID] = session

	participant, ok := r.participants[identity.ID]
	if !ok {
		participant = newParticipant(identity)
		r.participants[identity.ID] = participant
	}
	participant.Online = true
	participant.LastSeen = time.Now()

	r.emptySince = time.Time{}
	r.lastActivity = time.Now()

	snapshot := r.snapshotLocked()
	joined := *participant

	r.mu.Unlock()

	r.logger.Info().
		Str("user_id", identity.ID).
		Int("participants", len(snapshot.Participants)).
		Msg("Session joined room.")

	if err := session.sendEvent(EventRoomState, snapshot); err != nil {
		r.logger.Warn().Err(err).Str("user_id", identity.ID).Msg("Failed to push room-state snapshot.")
	}

	r.broadcast(EventUserJoined, joined, identity.ID)
}

// handleUnregister detaches a session. Disconnects retain the Participant record
// offline; explicit leaves remove it. Either way the departure is announced and,
// when the last live session is gone, the empty timer starts.
func (r *Room) handleUnregister(req unregisterRequest) {
	identity := req.session.Identity()

	r.mu.Lock()

	current, ok := r.sessions[identity.ID]
	if !ok || current != req.session {
		// Stale request from a replaced connection.
		r.mu.Unlock()
		if !req.remove {
			req.session.closeSend()
		}
		return
	}

	delete(r.sessions, identity.ID)

	var departed Participant
	if participant, exists := r.participants[identity.ID]; exists {
		if req.remove {
			delete(r.participants, identity.ID)
			departed = *participant
		} else {
			participant.Online = false
			participant.LastSeen = time.Now()
			departed = *participant
		}
	}

	if !req.remove {
		req.session.closeSend()
	}

	r.lastActivity = time.Now()
	if len(r.sessions) == 0 {
		r.emptySince = time.Now()
	}

	remaining := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info().
		Str("user_id", identity.ID).
		Bool("removed", req.remove).
		Int("remaining_sessions", remaining).
		Msg("Session left room.")

	if departed.UserID != "" {
		r.broadcast(EventUserLeft, departed, identity.ID)
	}
}

// handleSubmission applies one validated client event to the room state.
func (r *Room) handleSubmission(sub inboundSubmission) {
	switch payload := sub.payload.(type) {
	case ContentChangePayload:
		r.applyContentChange(sub.session, payload)

	case CommentPayload:
		r.applyNewComment(sub.session, payload)

	case ResolveCommentPayload:
		r.applyResolveComment(sub.session, payload)

	case ActivityPayload:
		r.applyUserActivity(sub.session, payload)

	default:
		r.logger.Warn().Str("event_type", string(sub.eventType)).Msg("Unknown submission payload type.")
	}
}

// applyContentChange replaces the room content (last-writer-wins), persists
// best-effort and broadcasts to every other participant.
func (r *Room) applyContentChange(session *Session, payload ContentChangePayload) {
	identity := session.Identity()
	now := time.Now()

	r.mu.Lock()
	r.content = payload.Content
	r.lastActivity = now
	if participant, ok := r.participants[identity.ID]; ok {
		participant.Section = payload.Section
		participant.LastSeen = now
	}
	r.mu.Unlock()

	r.persistContent(payload.Content)

	r.broadcast(EventContentChange, ContentBroadcastPayload{
		Content:   payload.Content,
		Section:   payload.Section,
		UserID:    identity.ID,
		Timestamp: now.UnixMilli(),
	}, identity.ID)
}

// applyNewComment appends a comment with server-assigned fields, persists
// best-effort and broadcasts to all participants including the author, so the
// author's UI reflects the assigned id and timestamp.
func (r *Room) applyNewComment(session *Session, payload CommentPayload) {
	identity := session.Identity()

	comment := store.Comment{
		ID:          payload.ID,
		Content:     payload.Content,
		AuthorID:    identity.ID,
		AuthorName:  identity.Name,
		AuthorEmail: identity.Email,
		Section:     payload.Section,
		Resolved:    payload.Resolved,
		CreatedAt:   time.Now(),
	}
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}

	r.mu.Lock()
	r.comments = append(r.comments, comment)
	r.lastActivity = time.Now()
	r.mu.Unlock()

	r.persistComment(comment)

	r.broadcast(EventNewComment, comment, "")
}

// applyResolveComment flips the resolved flag of an existing comment. An unknown
// id is reported to the caller only and alters no room state.
func (r *Room) applyResolveComment(session *Session, payload ResolveCommentPayload) {
	r.mu.Lock()

	found := false
	for i := range r.comments {
		if r.comments[i].ID == payload.CommentID {
			r.comments[i].Resolved = true
			found = true
			break
		}
	}
	if found {
		r.lastActivity = time.Now()
	}

	r.mu.Unlock()

	if !found {
		session.SendError(errs.NewError(errs.ErrCommentNotFound))
		return
	}

	r.persistCommentResolution(payload.CommentID)

	r.broadcast(EventCommentResolved, CommentResolvedPayload{
		CommentID:  payload.CommentID,
		ResolvedBy: session.Identity().ID,
	}, "")
}

// applyUserActivity updates the submitting Participant's section and last-seen
// time and rebroadcasts the activity to other participants. Never persisted.
func (r *Room) applyUserActivity(session *Session, payload ActivityPayload) {
	identity := session.Identity()

	r.mu.Lock()
	if participant, ok := r.participants[identity.ID]; ok {
		participant.Section = payload.Section
		participant.LastSeen = time.Now()
	}
	r.lastActivity = time.Now()
	r.mu.Unlock()

	r.broadcast(EventUserActivity, ActivityBroadcastPayload{
		UserID:   identity.ID,
		Section:  payload.Section,
		Activity: payload.Activity,
	}, identity.ID)
}

// broadcast marshals one frame and queues it to every live session, excluding
// excludeUserID when non-empty.
func (r *Room) broadcast(eventType EventType, payload any, excludeUserID string) {
	messageBytes, err := MarshalEvent(eventType, payload)
	if err != nil {
		r.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("Error marshaling broadcast frame.")
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for userID, session := range r.sessions {
		if excludeUserID != "" && userID == excludeUserID {
			continue
		}
		if err := session.enqueue(messageBytes); err != nil {
			r.logger.Warn().Str("user_id", userID).Msg("Dropping broadcast frame for slow session.")
		}
	}
}

// Snapshot returns the current authoritative room state.
func (r *Room) Snapshot() RoomStatePayload {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// snapshotLocked builds the state payload. Callers must hold mu.
func (r *Room) snapshotLocked() RoomStatePayload {
	participants := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		participants = append(participants, *p)
	}

	comments := make([]store.Comment, len(r.comments))
	copy(comments, r.comments)

	return RoomStatePayload{
		RoomID:       r.Key,
		Content:      r.content,
		Comments:     comments,
		Participants: participants,
		LastActivity: r.lastActivity.UnixMilli(),
	}
}

// SessionCount returns the number of live connections in the room.
func (r *Room) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ParticipantCount returns the number of Participant records, online or not.
func (r *Room) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// EmptyFor returns how long the room has had no live sessions, zero while occupied.
func (r *Room) EmptyFor() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.emptySince.IsZero() {
		return 0
	}
	return time.Since(r.emptySince)
}

// persistContent saves the content to the durable store on a detached goroutine.
// The store must never be awaited under the room lock, and its failure only
// touches logs and the error counter.
func (r *Room) persistContent(content string) {
	if r.store == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := r.store.SaveContent(ctx, r.Kind, r.ContentID, content); err != nil {
			r.recordPersistenceFailure("save_content", "", err)
		}
	}()
}

// persistComment saves a new comment on a detached goroutine, best-effort.
func (r *Room) persistComment(comment store.Comment) {
	if r.store == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := r.store.SaveComment(ctx, r.Kind, r.ContentID, comment); err != nil {
			r.recordPersistenceFailure("save_comment", comment.ID, err)
		}
	}()
}

// persistCommentResolution patches a comment's resolved flag, best-effort.
func (r *Room) persistCommentResolution(commentID string) {
	if r.store == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := r.store.UpdateComment(ctx, commentID, true); err != nil {
			r.recordPersistenceFailure("update_comment", commentID, err)
		}
	}()
}

// recordPersistenceFailure counts and logs a durable-store failure under the
// persistence error code. Never surfaced to clients; the in-memory state stays
// authoritative.
func (r *Room) recordPersistenceFailure(op, commentID string, cause error) {
	r.metrics.ErrorOccurred()

	coded := errs.NewError(errs.ErrPersistenceFailed)
	event := r.logger.Error().Err(cause).Int("error_code", coded.Code).Str("op", op)
	if commentID != "" {
		event = event.Str("comment_id", commentID)
	}
	event.Msg(coded.Message)
}

// archiveFinalSnapshot uploads the room's last content before destruction.
func (r *Room) archiveFinalSnapshot() {
	if r.archiver == nil {
		return
	}

	r.mu.RLock()
	content := r.content
	r.mu.RUnlock()

	if content == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := r.archiver.ArchiveSnapshot(ctx, r.Kind, r.ContentID, content); err != nil {
		r.metrics.ErrorOccurred()
		r.logger.Error().Err(err).Msg("Final snapshot archive failed.")
	}
}
