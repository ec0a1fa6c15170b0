// internal/handlers/server.go
package handlers

import (
	"github.com/ponghall/ponghall/internal/cache"
	"github.com/ponghall/ponghall/internal/database"
	"github.com/ponghall/ponghall/internal/game"
	"github.com/ponghall/ponghall/internal/matchmaking"
	"github.com/ponghall/ponghall/internal/session"
	"github.com/ponghall/ponghall/internal/tournament"
)

// ArenaServer owns the injected state containers every component needs:
// the session registry, the matchmaking pool, the active-room table and
// the bracket controller. Nothing reaches for ambient globals; the WS
// handler threads this through instead.
type ArenaServer struct {
	Sessions    *session.Registry
	Pool        *matchmaking.Pool
	Rooms       *game.RoomStore
	Tournaments *tournament.Controller
}

// NewArenaServer wires the full engine: rooms persist through pgx and the
// Redis match feed, the bracket controller subscribes to tournament-linked
// room terminations, and reconnect eviction releases the replaced
// connection's queue entry, match and tournament membership.
func NewArenaServer() *ArenaServer {
	rooms := game.NewRoomStore()
	rooms.Recorder = database.MatchRecorder{}
	rooms.PublishFn = cache.PublishMatchResultAsync

	tournaments := tournament.NewController(rooms)
	tournaments.Recorder = database.TournamentRecorder{}
	rooms.OnTournamentMatchEnd = tournaments.HandleMatchResult

	pool := matchmaking.NewPool(rooms)

	sessions := session.NewRegistry()
	sessions.OnEvict = func(old *session.Session) {
		pool.Dequeue(old)
		rooms.HandleLeave(old.UserID)
		tournaments.HandleDisconnect(old.UserID)
	}

	return &ArenaServer{
		Sessions:    sessions,
		Pool:        pool,
		Rooms:       rooms,
		Tournaments: tournaments,
	}
}
