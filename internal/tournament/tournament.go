// internal/tournament/tournament.go
package tournament

import (
	"time"

	"github.com/google/uuid"

	"github.com/ponghall/ponghall/internal/session"
)

// Tournament lifecycle states. Transitions are monotonic:
// LOBBY -> IN_PROGRESS -> FINISHED, never backwards.
const (
	StatusLobby      = "LOBBY"
	StatusInProgress = "IN_PROGRESS"
	StatusFinished   = "FINISHED"
)

const (
	// MinPlayers is the smallest field a host can start with.
	MinPlayers = 4
	// MaxPlayers caps admissions into one tournament.
	MaxPlayers = 8

	// CountdownStart is the first secondsLeft value emitted once both
	// paired players confirm readiness.
	CountdownStart = 3
	// NextRoundDelay is how long after a round's match ends before the
	// next pairing is computed.
	NextRoundDelay = 3 * time.Second
)

// Player is one tournament participant. Ready matters only in LOBBY;
// Eliminated only while IN_PROGRESS, and once set it never clears.
type Player struct {
	UserID     int64
	Username   string
	Sess       *session.Session
	Ready      bool
	Eliminated bool
}

// Pairing is the transient record of the two identities chosen for the
// next round and which of them have confirmed readiness. At most one
// pairing is pending per tournament.
type Pairing struct {
	Player1   int64
	Player2   int64
	confirmed map[int64]bool
}

func (p *Pairing) involves(userID int64) bool {
	return p.Player1 == userID || p.Player2 == userID
}

// Tournament is one bracket's in-memory state. All fields are guarded by
// the owning Controller's lock; timers re-enter through Controller methods
// so no callback ever mutates a tournament unguarded.
type Tournament struct {
	ID       uuid.UUID
	Name     string
	HostID   int64
	Status   string
	Players  []*Player
	WinnerID int64

	pairing        *Pairing
	countdownTimer *time.Timer
	countdownLeft  int
	nextRoundTimer *time.Timer

	// activeRoomID is the round's running match, uuid.Nil between rounds.
	// While set, no new pairing may be computed: round N+1 must not exist
	// before round N's result has been consumed.
	activeRoomID uuid.UUID
}

func (t *Tournament) player(userID int64) *Player {
	for _, p := range t.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// activePlayers returns the non-eliminated participants in roster order.
func (t *Tournament) activePlayers() []*Player {
	var out []*Player
	for _, p := range t.Players {
		if !p.Eliminated {
			out = append(out, p)
		}
	}
	return out
}

// broadcast fans a message out to every participant with a live session,
// eliminated players included: they stay connected to watch the bracket.
func (t *Tournament) broadcast(msg map[string]interface{}) {
	for _, p := range t.Players {
		if p.Sess != nil {
			p.Sess.Write(msg)
		}
	}
}

func (t *Tournament) rosterPayload() map[string]interface{} {
	players := make([]map[string]interface{}, 0, len(t.Players))
	for _, p := range t.Players {
		players = append(players, map[string]interface{}{
			"id":           p.UserID,
			"username":     p.Username,
			"isReady":      p.Ready,
			"isEliminated": p.Eliminated,
		})
	}
	return map[string]interface{}{
		"type":         "tournament_roster_update",
		"tournamentId": t.ID.String(),
		"name":         t.Name,
		"hostId":       t.HostID,
		"status":       t.Status,
		"players":      players,
	}
}
