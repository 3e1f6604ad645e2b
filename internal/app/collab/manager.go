/*
Package collab contains the core logic of the real-time collaboration server.

This file defines the Manager, the authoritative room registry. It creates rooms
lazily on first join, seeds them from the durable store, and runs the reaper loop
that destroys rooms left empty past the grace period.
*/
package collab

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"coedit/internal/app/archive"
	"coedit/internal/app/metrics"
	"coedit/internal/app/store"
	"coedit/internal/pkg/errs"
	"coedit/internal/pkg/logx"
)

const (
	// EmptyRoomGrace is how long a room may sit without live sessions before it
	// is reaped.
	EmptyRoomGrace = 5 * time.Minute

	// reapSweepInterval is how often the reaper scans the registry.
	reapSweepInterval = 30 * time.Second

	// loadStateTimeout bounds the best-effort state load at room creation.
	loadStateTimeout = 5 * time.Second
)

// Manager coordinates all active rooms and owns their lifecycle.
type Manager struct {
	// rooms maps a room key to its Room instance.
	rooms map[string]*Room

	// mu protects concurrent access to the rooms map.
	mu sync.RWMutex

	// cleanup receives terminated rooms from their loops.
	cleanup chan *Room

	// wg waits for the cleanup and reaper goroutines during shutdown.
	wg sync.WaitGroup

	// stopReaper terminates the reaper loop.
	stopReaper chan struct{}

	stopOnce sync.Once

	store    store.Store
	archiver archive.Archiver
	metrics  *metrics.Registry

	// emptyGrace and sweepInterval default to the package constants; tests use
	// shorter values.
	emptyGrace    time.Duration
	sweepInterval time.Duration

	// structured logger with registry context.
	logger zerolog.Logger
}

// NewManager constructs a Manager and starts its cleanup and reaper loops.
func NewManager(st store.Store, arc archive.Archiver, met *metrics.Registry) *Manager {
	m := &Manager{
		rooms:         make(map[string]*Room),
		cleanup:       make(chan *Room, 16),
		stopReaper:    make(chan struct{}),
		store:         st,
		archiver:      arc,
		metrics:       met,
		emptyGrace:    EmptyRoomGrace,
		sweepInterval: reapSweepInterval,
		logger:        logx.Logger().With().Str("component", "registry").Logger(),
	}

	m.wg.Add(2)
	go m.runCleanupLoop()
	go m.runReapLoop()

	return m
}

// runCleanupLoop removes rooms from the registry as their loops terminate.
func (m *Manager) runCleanupLoop() {
	defer m.wg.Done()

	m.logger.Info().Msg("Registry cleanup loop started.")

	for room := range m.cleanup {
		m.removeRoom(room)
	}

	m.logger.Info().Msg("Registry cleanup loop stopped.")
}

// runReapLoop periodically scans the registry for rooms whose live session count
// has been zero past the grace period and asks them to shut down. The room loop
// re-validates occupancy before terminating, so a stale request never destroys a
// room that regained occupants.
func (m *Manager) runReapLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweepEmptyRooms()
		case <-m.stopReaper:
			return
		}
	}
}

// sweepEmptyRooms issues reap requests for rooms empty past the grace period.
func (m *Manager) sweepEmptyRooms() {
	m.mu.RLock()
	candidates := make([]*Room, 0)
	for _, room := range m.rooms {
		if d := room.EmptyFor(); d >= m.emptyGrace {
			candidates = append(candidates, room)
		}
	}
	m.mu.RUnlock()

	for _, room := range candidates {
		m.logger.Info().Str("room_key", room.Key).Msg("Reaping room empty past grace period.")
		room.RequestReap()
	}
}

// removeRoom drops the room from the registry only while it is still the
// registered instance for its key. A notification from a terminated room may
// arrive after a replacement was already created under the same key; deleting
// by key alone would orphan the replacement's live participants.
func (m *Manager) removeRoom(room *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.rooms[room.Key]; ok && current == room {
		delete(m.rooms, room.Key)
		m.logger.Info().Str("room_key", room.Key).Msg("Room removed from registry.")
	}
}

// GetOrCreateRoom returns the room for (kind, id), creating and starting it on
// first use. New rooms are seeded from the durable store best-effort: a load
// failure is logged and counted, and the room starts empty.
func (m *Manager) GetOrCreateRoom(kind, id string) *Room {
	key := RoomKey(kind, id)

	m.mu.RLock()
	room, ok := m.rooms[key]
	m.mu.RUnlock()

	if ok {
		return room
	}

	seed := m.loadSeedState(kind, id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok = m.rooms[key]; ok {
		return room
	}

	room = NewRoom(kind, id, seed, m.cleanup, m.store, m.archiver, m.metrics)
	m.rooms[key] = room

	go room.Run()

	m.logger.Info().Str("room_key", key).Msg("Room created and started.")
	return room
}

// loadSeedState fetches persisted content and comments for a new room.
// Failures degrade to an empty room; the in-memory path stays available.
func (m *Manager) loadSeedState(kind, id string) *store.DocumentState {
	if m.store == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadStateTimeout)
	defer cancel()

	seed, err := m.store.LoadState(ctx, kind, id)
	if err != nil {
		m.metrics.ErrorOccurred()
		m.logger.Error().Err(err).
			Str("kind", kind).
			Str("content_id", id).
			Msg("Best-effort state load failed. Room starts empty.")
		return nil
	}

	return seed
}

// JoinRoom moves the session into the room for (kind, id). A session already in
// another room leaves it first; leave and join run back to back on the session's
// read goroutine, so the user never appears in two rooms at once.
func (m *Manager) JoinRoom(session *Session, kind, id string) {
	key := RoomKey(kind, id)

	if session.room != nil {
		if session.room.Key == key {
			// Re-join of the current room: push a fresh snapshot.
			session.room.RegisterSession(session)
			return
		}

		session.room.LeaveSession(session)
		session.room = nil
	}

	// A room can terminate between lookup and registration; retry once against
	// a freshly created room.
	for attempt := 0; attempt < 2; attempt++ {
		room := m.GetOrCreateRoom(kind, id)
		if room.RegisterSession(session) {
			session.room = room
			return
		}
		m.removeRoom(room)
	}

	session.SendError(errs.NewError(errs.ErrUnknown))
}

// RoomCount returns the number of active rooms in the registry.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Shutdown gracefully stops the reaper, every room loop and the cleanup loop.
func (m *Manager) Shutdown() {
	m.logger.Info().Msg("Shutting down room registry...")

	m.stopOnce.Do(func() {
		close(m.stopReaper)

		m.mu.Lock()
		for _, room := range m.rooms {
			room.Stop()
		}
		m.rooms = make(map[string]*Room)
		m.mu.Unlock()

		close(m.cleanup)
		m.wg.Wait()
	})

	m.logger.Info().Msg("Room registry shutdown complete.")
}
