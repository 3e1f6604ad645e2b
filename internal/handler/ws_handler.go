/*
Package handler provides the HTTP handlers and routing for the collaboration server.

This file contains the connection gatekeeper: it validates the identity claims
presented at connect time, consults the admission guard, and on success upgrades
the connection and starts the session's pump goroutines.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"coedit/internal/app/collab"
	"coedit/internal/pkg/auth/token"
	"coedit/internal/pkg/errs"
	"coedit/internal/pkg/logx"
	"coedit/internal/pkg/resp"
)

// resolveIdentity extracts the connection-time identity claims from the request.
// A signed token (?token=) is the normal path; in development plain query
// parameters (uid, name, email) are accepted for local clients.
func resolveIdentity(r *http.Request, deps *AppDeps) (collab.Identity, *errs.CustomError) {
	query := r.URL.Query()

	if tokenString := query.Get("token"); tokenString != "" {
		claims, err := token.ParseToken(tokenString, deps.Config.TokenSecret)
		if err != nil {
			logx.Warn("Connection rejected: invalid identity token.", "error", err.Error())
			return collab.Identity{}, errs.NewError(errs.ErrAuthInvalidToken)
		}

		identity := collab.Identity{ID: claims.UserID, Name: claims.Name, Email: claims.Email}
		if identity.ID == "" || identity.Name == "" || identity.Email == "" {
			return collab.Identity{}, errs.NewError(errs.ErrAuthMissingClaims)
		}
		return identity, nil
	}

	if deps.Config.Environment == "development" {
		identity := collab.Identity{
			ID:    query.Get("uid"),
			Name:  query.Get("name"),
			Email: query.Get("email"),
		}
		if identity.ID == "" || identity.Name == "" || identity.Email == "" {
			return collab.Identity{}, errs.NewError(errs.ErrAuthMissingClaims)
		}
		return identity, nil
	}

	return collab.Identity{}, errs.NewError(errs.ErrAuthMissingClaims)
}

// HandleWebSocket creates the HandlerFunc that admits collaboration connections.
// The gatekeeper checks run once per connection establishment, before any room
// interaction is possible. Per-IP throttling happens upstream in the limiter
// middleware mounted on the route.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, authErr := resolveIdentity(r, deps)
		if authErr != nil {
			deps.Metrics.ErrorOccurred()
			resp.RespondError(w, r, authErr)
			return
		}

		if !deps.Guard.Allow(identity.ID) {
			logx.Warn("Connection rejected: admission guard declined.", "user_id", identity.ID)
			deps.Metrics.ErrorOccurred()
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		session := collab.NewSession(conn, identity, deps.Manager, deps.Metrics)
		deps.Metrics.ConnOpened()

		logx.Info("Collaboration connection established", "user_id", identity.ID)

		go session.WritePump()
		session.ReadPump()
	}
}
