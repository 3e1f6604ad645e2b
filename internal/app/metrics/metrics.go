/*
Package metrics maintains the server's operational counters.

All counters are purely additive and updated by the other components; the package
exposes a read-only snapshot consumed by the health and metrics endpoints. It has
no mutation path of its own beyond incrementing.
*/
package metrics

import (
	"sync/atomic"
	"time"
)

// Registry holds the live counters for one server process.
type Registry struct {
	startTime time.Time

	activeConnections atomic.Int64
	messagesSent      atomic.Int64
	messagesReceived  atomic.Int64
	errorCount        atomic.Int64
}

// Snapshot is a point-in-time read of all counters plus derived values.
type Snapshot struct {
	ActiveConnections int64   `json:"activeConnections"`
	MessagesSent      int64   `json:"messagesSent"`
	MessagesReceived  int64   `json:"messagesReceived"`
	ErrorCount        int64   `json:"errorCount"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
	MessagesPerSecond float64 `json:"messagesPerSecond"`
}

// NewRegistry creates a Registry with the uptime clock started.
func NewRegistry() *Registry {
	return &Registry{startTime: time.Now()}
}

// ConnOpened increments the active connection gauge.
func (m *Registry) ConnOpened() {
	m.activeConnections.Add(1)
}

// ConnClosed decrements the active connection gauge.
func (m *Registry) ConnClosed() {
	m.activeConnections.Add(-1)
}

// MessageSent increments the cumulative sent counter.
func (m *Registry) MessageSent() {
	m.messagesSent.Add(1)
}

// MessageReceived increments the cumulative received counter.
func (m *Registry) MessageReceived() {
	m.messagesReceived.Add(1)
}

// ErrorOccurred increments the cumulative error counter.
func (m *Registry) ErrorOccurred() {
	m.errorCount.Add(1)
}

// ErrorCount returns the current cumulative error count.
func (m *Registry) ErrorCount() int64 {
	return m.errorCount.Load()
}

// Snapshot returns the current counter values with derived throughput and uptime.
func (m *Registry) Snapshot() Snapshot {
	uptime := time.Since(m.startTime).Seconds()

	sent := m.messagesSent.Load()
	received := m.messagesReceived.Load()

	perSecond := 0.0
	if uptime > 0 {
		perSecond = float64(sent+received) / uptime
	}

	return Snapshot{
		ActiveConnections: m.activeConnections.Load(),
		MessagesSent:      sent,
		MessagesReceived:  received,
		ErrorCount:        m.errorCount.Load(),
		UptimeSeconds:     uptime,
		MessagesPerSecond: perSecond,
	}
}
