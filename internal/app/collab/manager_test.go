package collab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coedit/internal/app/archive"
	"coedit/internal/app/metrics"
	"coedit/internal/app/store"
)

// newTestManager builds a manager with short reaper timings and starts its loops.
func newTestManager(t *testing.T, st store.Store, met *metrics.Registry,
	emptyGrace, sweepInterval time.Duration) *Manager {
	t.Helper()

	m := &Manager{
		rooms:         make(map[string]*Room),
		cleanup:       make(chan *Room, 16),
		stopReaper:    make(chan struct{}),
		store:         st,
		archiver:      archive.Noop{},
		metrics:       met,
		emptyGrace:    emptyGrace,
		sweepInterval: sweepInterval,
		logger:        zerolog.Nop(),
	}
	m.wg.Add(2)
	go m.runCleanupLoop()
	go m.runReapLoop()

	t.Cleanup(m.Shutdown)
	return m
}

func Test_GetOrCreateRoom_lazyCreationAndReuse(t *testing.T) {
	met := metrics.NewRegistry()
	m := newTestManager(t, store.NewMockStore(), met, time.Hour, time.Hour)

	assert.Equal(t, 0, m.RoomCount())

	room := m.GetOrCreateRoom("idea", "42")
	require.NotNil(t, room)
	assert.Equal(t, "idea-42", room.Key)
	assert.Equal(t, 1, m.RoomCount())

	again := m.GetOrCreateRoom("idea", "42")
	assert.Same(t, room, again, "existing room must be reused")
	assert.Equal(t, 1, m.RoomCount())
}

func Test_GetOrCreateRoom_seedsFromStore(t *testing.T) {
	met := metrics.NewRegistry()
	mockStore := store.NewMockStore()
	require.NoError(t, mockStore.SaveContent(context.Background(), "idea", "42", "persisted draft"))

	m := newTestManager(t, mockStore, met, time.Hour, time.Hour)

	room := m.GetOrCreateRoom("idea", "42")
	assert.Equal(t, "persisted draft", room.Snapshot().Content)
}

func Test_GetOrCreateRoom_loadFailureStartsEmpty(t *testing.T) {
	met := metrics.NewRegistry()
	mockStore := store.NewMockStore()
	mockStore.LoadStateFunc = func(ctx context.Context, kind, id string) (*store.DocumentState, error) {
		return nil, errors.New("database unavailable")
	}

	m := newTestManager(t, mockStore, met, time.Hour, time.Hour)

	room := m.GetOrCreateRoom("idea", "42")
	require.NotNil(t, room)
	assert.Empty(t, room.Snapshot().Content)
	assert.Equal(t, int64(1), met.ErrorCount())
}

func Test_JoinRoom_switchMovesParticipantAtomically(t *testing.T) {
	met := metrics.NewRegistry()
	m := newTestManager(t, store.NewMockStore(), met, time.Hour, time.Hour)

	alice := newTestSession("u1", "Alice", met)

	m.JoinRoom(alice, "idea", "42")
	roomA := m.GetOrCreateRoom("idea", "42")
	recvFrameOfType(t, alice, EventRoomState, time.Second)
	eventually(t, time.Second, func() bool { return roomA.ParticipantCount() == 1 }, "join A not applied")

	m.JoinRoom(alice, "idea", "43")
	roomB := m.GetOrCreateRoom("idea", "43")
	recvFrameOfType(t, alice, EventRoomState, time.Second)

	eventually(t, time.Second, func() bool { return roomB.ParticipantCount() == 1 }, "join B not applied")
	eventually(t, time.Second, func() bool { return roomA.ParticipantCount() == 0 },
		"switching rooms must remove the participant from the old room")
	assert.Equal(t, 0, roomA.SessionCount())
	assert.Same(t, roomB, alice.room)
}

func Test_JoinRoom_concurrentJoinersShareOneRoom(t *testing.T) {
	met := metrics.NewRegistry()
	m := newTestManager(t, store.NewMockStore(), met, time.Hour, time.Hour)

	const joiners = 8
	sessions := make([]*Session, joiners)
	var wg sync.WaitGroup

	for i := 0; i < joiners; i++ {
		s := newTestSession(string(rune('a'+i)), "User", met)
		sessions[i] = s
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.JoinRoom(s, "idea", "42")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, m.RoomCount(), "concurrent joins must converge on one room")

	room := m.GetOrCreateRoom("idea", "42")
	eventually(t, time.Second, func() bool { return room.ParticipantCount() == joiners },
		"all joiners must appear in the participant map")
}

func Test_cleanup_staleNotificationSparesReplacementRoom(t *testing.T) {
	met := metrics.NewRegistry()

	// Loops are not started: the cleanup notification is consumed manually so
	// the ordering that matters (replacement created before the terminated
	// room's notification is processed) is deterministic.
	m := &Manager{
		rooms:         make(map[string]*Room),
		cleanup:       make(chan *Room, 16),
		stopReaper:    make(chan struct{}),
		store:         store.NewMockStore(),
		archiver:      archive.Noop{},
		metrics:       met,
		emptyGrace:    time.Hour,
		sweepInterval: time.Hour,
		logger:        zerolog.Nop(),
	}

	first := m.GetOrCreateRoom("idea", "42")
	first.RequestReap()

	var stale *Room
	select {
	case stale = <-m.cleanup:
	case <-time.After(time.Second):
		t.Fatal("terminated room did not notify the registry")
	}
	require.Same(t, first, stale)

	// A joiner recreates the room for the same document before the
	// notification lands.
	replacement := m.GetOrCreateRoom("idea", "42")
	t.Cleanup(replacement.Stop)
	require.NotSame(t, first, replacement)

	alice := newTestSession("u1", "Alice", met)
	require.True(t, replacement.RegisterSession(alice))
	recvFrameOfType(t, alice, EventRoomState, time.Second)

	// Process the stale notification exactly as the cleanup loop does.
	m.removeRoom(stale)

	assert.Equal(t, 1, m.RoomCount(), "stale cleanup must not delete the replacement room")
	assert.Same(t, replacement, m.GetOrCreateRoom("idea", "42"),
		"the registry must keep handing out the live replacement")
}

func Test_reaper_destroysRoomEmptyPastGrace(t *testing.T) {
	met := metrics.NewRegistry()
	m := newTestManager(t, store.NewMockStore(), met, 30*time.Millisecond, 10*time.Millisecond)

	m.GetOrCreateRoom("idea", "42")
	assert.Equal(t, 1, m.RoomCount())

	eventually(t, 2*time.Second, func() bool { return m.RoomCount() == 0 },
		"room empty past the grace period must be reaped")
}

func Test_reaper_sparesRoomRejoinedBeforeGrace(t *testing.T) {
	met := metrics.NewRegistry()
	m := newTestManager(t, store.NewMockStore(), met, 80*time.Millisecond, 10*time.Millisecond)

	alice := newTestSession("u1", "Alice", met)
	m.JoinRoom(alice, "idea", "42")
	recvFrameOfType(t, alice, EventRoomState, time.Second)

	// Occupied rooms never accumulate empty time.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, m.RoomCount(), "occupied room must not be reaped")

	room := m.GetOrCreateRoom("idea", "42")
	room.DisconnectSession(alice)
	eventually(t, time.Second, func() bool { return room.SessionCount() == 0 }, "disconnect not applied")

	// Rejoin inside the grace period resets the empty timer.
	bob := newTestSession("u2", "Bob", met)
	m.JoinRoom(bob, "idea", "42")
	recvFrameOfType(t, bob, EventRoomState, time.Second)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, m.RoomCount(), "rejoined room must not be reaped")
}

func Test_Shutdown_stopsAllRooms(t *testing.T) {
	met := metrics.NewRegistry()
	m := newTestManager(t, store.NewMockStore(), met, time.Hour, time.Hour)

	m.GetOrCreateRoom("idea", "1")
	m.GetOrCreateRoom("idea", "2")
	require.Equal(t, 2, m.RoomCount())

	m.Shutdown()
	assert.Equal(t, 0, m.RoomCount())
}
