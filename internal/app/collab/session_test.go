package collab

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coedit/internal/app/metrics"
	"coedit/internal/app/store"
)

func Test_handleContentChange_requiresRoom(t *testing.T) {
	met := metrics.NewRegistry()
	alice := newTestSession("u1", "Alice", met)

	alice.processInbound([]byte(`{"type":"content-change","payload":{"content":"hi"}}`))

	frame := recvFrame(t, alice, time.Second)
	assert.Equal(t, EventError, frame.Type)

	var errPayload ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &errPayload))
	assert.Equal(t, 2001, errPayload.Code)
}

func Test_handleContentChange_throttleDropsRapidSubmissions(t *testing.T) {
	met := metrics.NewRegistry()
	room, _ := newTestRoom(t, store.NewMockStore(), met)

	alice := newTestSession("u1", "Alice", met)
	bob := newTestSession("u2", "Bob", met)
	joinRoom(t, room, alice)
	joinRoom(t, room, bob)
	recvFrameOfType(t, alice, EventUserJoined, time.Second)

	submit := func(content string) {
		payload, _ := json.Marshal(ContentChangePayload{Content: content})
		alice.handleContentChange(payload)
	}

	// First submission accepted.
	submit("Hello")
	frame := recvFrameOfType(t, bob, EventContentChange, time.Second)
	var broadcast ContentBroadcastPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &broadcast))
	assert.Equal(t, "Hello", broadcast.Content)

	// Second submission inside the throttle interval: silent drop, no error,
	// no broadcast, no state change.
	alice.lastContentAt = time.Now()
	submit("Hello!")
	assertNoFrame(t, bob, 50*time.Millisecond)
	assertNoFrame(t, alice, 10*time.Millisecond)
	assert.Equal(t, "Hello", room.Snapshot().Content)

	// Third submission past the interval: accepted.
	alice.lastContentAt = time.Now().Add(-150 * time.Millisecond)
	submit("Hello world")
	frame = recvFrameOfType(t, bob, EventContentChange, time.Second)
	require.NoError(t, json.Unmarshal(frame.Payload, &broadcast))
	assert.Equal(t, "Hello world", broadcast.Content)

	assert.Equal(t, "Hello world", room.Snapshot().Content)
}

func Test_handleContentChange_rejectsOversizedContent(t *testing.T) {
	met := metrics.NewRegistry()
	room, _ := newTestRoom(t, store.NewMockStore(), met)

	alice := newTestSession("u1", "Alice", met)
	joinRoom(t, room, alice)

	oversized := strings.Repeat("a", MaxContentLength+1)
	payload, _ := json.Marshal(ContentChangePayload{Content: oversized})
	alice.handleContentChange(payload)

	frame := recvFrameOfType(t, alice, EventError, time.Second)
	var errPayload ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &errPayload))
	assert.Equal(t, 2002, errPayload.Code)

	assert.Empty(t, room.Snapshot().Content, "oversized content must not be applied")
}

func Test_handleNewComment_rejectsOversizedBody(t *testing.T) {
	met := metrics.NewRegistry()
	room, _ := newTestRoom(t, store.NewMockStore(), met)

	alice := newTestSession("u1", "Alice", met)
	joinRoom(t, room, alice)

	oversized := strings.Repeat("b", MaxCommentLength+1)
	payload, _ := json.Marshal(CommentPayload{Content: oversized})
	alice.handleNewComment(payload)

	frame := recvFrameOfType(t, alice, EventError, time.Second)
	var errPayload ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &errPayload))
	assert.Equal(t, 2101, errPayload.Code)

	assert.Empty(t, room.Snapshot().Comments)
}

func Test_processInbound_ignoresInvalidJSON(t *testing.T) {
	met := metrics.NewRegistry()
	alice := newTestSession("u1", "Alice", met)

	alice.processInbound([]byte(`{not json`))

	assertNoFrame(t, alice, 20*time.Millisecond)
	assert.Equal(t, int64(1), met.Snapshot().MessagesReceived)
}

func Test_Kick_queuesCloseFrameForWritePump(t *testing.T) {
	met := metrics.NewRegistry()
	alice := newTestSession("u1", "Alice", met)

	// Kick must never write to the connection itself; the close frame is
	// queued for the write pump, which owns all connection writes.
	alice.Kick("replaced")

	select {
	case closeMessage := <-alice.kick:
		require.GreaterOrEqual(t, len(closeMessage), 2)
		code := int(closeMessage[0])<<8 | int(closeMessage[1])
		assert.Equal(t, WsCloseCodeSessionReplaced, code)
		assert.Contains(t, string(closeMessage[2:]), "replaced")
	default:
		t.Fatal("close frame not queued")
	}

	// A second kick finds the slot occupied and drops; no block, no panic.
	alice.Kick("replaced again")
}

func Test_handleRegister_replacesDuplicateUserSession(t *testing.T) {
	met := metrics.NewRegistry()
	room, _ := newTestRoom(t, store.NewMockStore(), met)

	stale := newTestSession("u1", "Alice", met)
	joinRoom(t, room, stale)

	fresh := newTestSession("u1", "Alice", met)
	joinRoom(t, room, fresh)

	// The replaced connection is told to close with the session-replaced code.
	select {
	case closeMessage := <-stale.kick:
		code := int(closeMessage[0])<<8 | int(closeMessage[1])
		assert.Equal(t, WsCloseCodeSessionReplaced, code)
	case <-time.After(time.Second):
		t.Fatal("replaced session was not kicked")
	}

	assert.Equal(t, 1, room.SessionCount())
	assert.Equal(t, 1, room.ParticipantCount())
}

// Typing scenario: Hello accepted, Hello! 50ms later dropped by the throttle,
// Hello world after a further 100ms accepted. Exactly two broadcasts reach the
// other participant and the room ends on the last write.
func Test_contentScenario_throttledTypingBurst(t *testing.T) {
	met := metrics.NewRegistry()
	room, _ := newTestRoom(t, store.NewMockStore(), met)

	alice := newTestSession("u1", "Alice", met)
	bob := newTestSession("u2", "Bob", met)
	joinRoom(t, room, alice)
	joinRoom(t, room, bob)
	recvFrameOfType(t, alice, EventUserJoined, time.Second)

	submit := func(content string) {
		payload, _ := json.Marshal(ContentChangePayload{Content: content})
		alice.handleContentChange(payload)
	}

	submit("Hello")
	time.Sleep(50 * time.Millisecond)
	submit("Hello!")
	time.Sleep(100 * time.Millisecond)
	submit("Hello world")

	first := recvFrameOfType(t, bob, EventContentChange, time.Second)
	second := recvFrameOfType(t, bob, EventContentChange, time.Second)
	assertNoFrame(t, bob, 50*time.Millisecond)

	var firstPayload, secondPayload ContentBroadcastPayload
	require.NoError(t, json.Unmarshal(first.Payload, &firstPayload))
	require.NoError(t, json.Unmarshal(second.Payload, &secondPayload))
	assert.Equal(t, "Hello", firstPayload.Content)
	assert.Equal(t, "Hello world", secondPayload.Content)

	assert.Equal(t, "Hello world", room.Snapshot().Content)
}
