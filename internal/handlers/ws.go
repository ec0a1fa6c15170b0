// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ponghall/ponghall/internal/auth"
	"github.com/ponghall/ponghall/internal/game"
	"github.com/ponghall/ponghall/internal/session"
)

// ClientMessage is the shape of every incoming WebSocket packet. Fields
// beyond Type are populated per message type.
type ClientMessage struct {
	Type string `json:"type"`

	// join_queue
	Mode           string               `json:"mode,omitempty"`
	CustomSettings *game.CustomSettings `json:"customSettings,omitempty"`

	// paddle_move
	NewPosition float64 `json:"newPosition,omitempty"`

	// tournament messages
	TournamentID string `json:"tournamentId,omitempty"`
	Name         string `json:"name,omitempty"`
	IsReady      bool   `json:"isReady,omitempty"`
}

// WSHandler upgrades the HTTP connection, authenticates the identity token,
// registers the session (evicting any previous connection for the same
// identity) and runs the read loop until the client goes away. Cleanup on
// exit tears down whatever the session held: queue entry, live match,
// tournament membership.
func WSHandler(logger *logrus.Logger, srv *ArenaServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"arena"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "arena" {
			c.Close(BadSubprotocolError, "client must speak the arena subprotocol")
			return
		}

		identity, err := auth.ParseToken(extractToken(r))
		if err != nil {
			logger.Warnf("ws auth failed: %v", err)
			c.Close(InvalidAuthTokenError, "authentication failed")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		sess := session.New(identity.UserID, identity.Username)
		sess.Cancel = cancel

		srv.Sessions.Register(sess)
		logger.Infof("user %d (%s) connected from %s", identity.UserID, identity.Username, r.RemoteAddr)

		go writePump(ctx, c, sess, logger)
		readPump(ctx, c, srv, sess, logger)

		// Cleanup only runs for the connection still registered for this
		// identity; a stale exit racing a reconnect must not tear down
		// the replacement's queue entry or match.
		if srv.Sessions.Unregister(sess) {
			srv.Pool.Dequeue(sess)
			srv.Rooms.HandleLeave(sess.UserID)
			srv.Tournaments.HandleDisconnect(sess.UserID)
		}
		logger.Infof("user %d disconnected", identity.UserID)
	}
}

// extractToken pulls the identity token from the query string or the auth
// cookie, in that order.
func extractToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}

func readPump(ctx context.Context, c *websocket.Conn, srv *ArenaServer, sess *session.Session, logger *logrus.Logger) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("websocket closed normally for user %d", sess.UserID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("read error for user %d: %v", sess.UserID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			logger.Warnf("non-text message from user %d, ignoring", sess.UserID)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("invalid json from user %d: %v", sess.UserID, err)
			sess.WriteError("invalid JSON format")
			continue
		}

		handleMessage(srv, sess, msg, logger)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// handleMessage routes one client packet. Admission errors come back as
// error payloads; everything else is fire-and-forget into the engine.
func handleMessage(srv *ArenaServer, sess *session.Session, msg ClientMessage, logger *logrus.Logger) {
	switch msg.Type {
	case "join_queue":
		if err := srv.Pool.Enqueue(sess, msg.Mode, msg.CustomSettings); err != nil {
			sess.WriteError(err.Error())
		}

	case "paddle_move":
		srv.Rooms.HandleMove(sess.UserID, msg.NewPosition)

	case "leave_queue_or_match":
		srv.Pool.Dequeue(sess)
		srv.Rooms.HandleLeave(sess.UserID)

	case "tournament_create":
		if _, err := srv.Tournaments.Create(sess, msg.Name); err != nil {
			sess.WriteError(err.Error())
		}

	case "tournament_join":
		withTournamentID(sess, msg, func(id uuid.UUID) {
			if err := srv.Tournaments.Join(sess, id); err != nil {
				sess.WriteError(err.Error())
			}
		})

	case "tournament_leave":
		withTournamentID(sess, msg, func(id uuid.UUID) {
			if err := srv.Tournaments.Leave(sess, id); err != nil {
				sess.WriteError(err.Error())
			}
		})

	case "tournament_set_ready":
		withTournamentID(sess, msg, func(id uuid.UUID) {
			if err := srv.Tournaments.SetReady(sess, id, msg.IsReady); err != nil {
				sess.WriteError(err.Error())
			}
		})

	case "tournament_start":
		withTournamentID(sess, msg, func(id uuid.UUID) {
			if err := srv.Tournaments.Start(sess, id); err != nil {
				sess.WriteError(err.Error())
			}
		})

	case "tournament_delete":
		withTournamentID(sess, msg, func(id uuid.UUID) {
			if err := srv.Tournaments.Delete(sess, id); err != nil {
				sess.WriteError(err.Error())
			}
		})

	case "tournament_ready_for_round":
		withTournamentID(sess, msg, func(id uuid.UUID) {
			srv.Tournaments.ConfirmRoundReady(sess, id)
		})

	case "ping":
		sess.Write(map[string]interface{}{"type": "pong"})

	default:
		logger.Warnf("unknown message type %q from user %d", msg.Type, sess.UserID)
		sess.WriteError(fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func withTournamentID(sess *session.Session, msg ClientMessage, fn func(uuid.UUID)) {
	id, err := uuid.Parse(msg.TournamentID)
	if err != nil {
		sess.WriteError("invalid tournamentId")
		return
	}
	fn(id)
}

// writePump drains the session's outbound channel onto the wire and keeps
// the connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, sess *session.Session, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer c.Close(websocket.StatusGoingAway, "write pump stopping")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sess.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("failed to marshal outgoing msg for user %d: %v", sess.UserID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for user %d: %v", sess.UserID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("ping failed for user %d, assuming disconnect: %v", sess.UserID, err)
				return
			}
		}
	}
}
