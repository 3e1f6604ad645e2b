/*
Package handler provides the HTTP handlers and routing for the collaboration server.

This file contains the read-only status surface: /health with a summarized view
and /metrics with the raw counters. Neither endpoint mutates any component state.
*/
package handler

import (
	"net/http"

	"coedit/internal/pkg/resp"
)

// healthPayload is the JSON body returned by GET /health.
type healthPayload struct {
	Status            string  `json:"status"`
	RoomCount         int     `json:"roomCount"`
	ActiveConnections int64   `json:"activeConnections"`
	MessagesSent      int64   `json:"messagesSent"`
	MessagesReceived  int64   `json:"messagesReceived"`
	ErrorCount        int64   `json:"errorCount"`
	MessagesPerSecond float64 `json:"messagesPerSecond"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
}

// HandleHealth returns the summarized health snapshot.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := deps.Metrics.Snapshot()

		resp.RespondSuccess(w, r, healthPayload{
			Status:            "ok",
			RoomCount:         deps.Manager.RoomCount(),
			ActiveConnections: snap.ActiveConnections,
			MessagesSent:      snap.MessagesSent,
			MessagesReceived:  snap.MessagesReceived,
			ErrorCount:        snap.ErrorCount,
			MessagesPerSecond: snap.MessagesPerSecond,
			UptimeSeconds:     snap.UptimeSeconds,
		})
	}
}

// HandleMetrics returns the raw counter snapshot plus the current room count.
func HandleMetrics(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := deps.Metrics.Snapshot()

		resp.RespondSuccess(w, r, struct {
			RoomCount int `json:"roomCount"`
			Counters  any `json:"counters"`
		}{
			RoomCount: deps.Manager.RoomCount(),
			Counters:  snap,
		})
	}
}
