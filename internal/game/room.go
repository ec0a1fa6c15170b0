// internal/game/room.go
package game

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ponghall/ponghall/internal/models"
	"github.com/ponghall/ponghall/internal/session"
)

// Board positions. Left and right paddles travel along the y axis, top and
// bottom paddles along the x axis.
const (
	PositionLeft   = "left"
	PositionRight  = "right"
	PositionTop    = "top"
	PositionBottom = "bottom"
)

// Game modes and their required player counts.
const (
	Mode1v1 = "1v1"
	Mode2v2 = "2v2"
)

// LinkageKind tags how a room was created.
type LinkageKind int

const (
	LinkageStandalone LinkageKind = iota
	LinkageTournament
)

// Linkage ties a room back to the tournament round that spawned it, if any.
type Linkage struct {
	Kind         LinkageKind
	TournamentID uuid.UUID
}

// Participant is one seated player in a room.
type Participant struct {
	UserID   int64
	Username string
	Sess     *session.Session
	Team     int    // 1 or 2
	Position string // left/right/top/bottom

	// PaddlePos is the low edge of the paddle along its travel axis,
	// in [0, canvasSize-paddleSize]. Mutated only under the room lock.
	PaddlePos float64
	Hits      int
}

// State is the live simulation state broadcast to room members each tick.
type State struct {
	BallX  float64
	BallY  float64
	BallVX float64
	BallVY float64

	Team1Score int
	Team2Score int
}

// Result describes a finished room, handed to the store's finish hook.
type Result struct {
	RoomID  uuid.UUID
	Linkage Linkage
	Winners []int64
	Losers  []int64
	Reason  string // "score" or "forfeit"
	Record  models.MatchRecord
}

// Room is one live match instance. It owns its simulation exclusively: the
// tick goroutine and validated paddle-move messages are the only writers of
// State, both under Mu.
type Room struct {
	ID           uuid.UUID
	Mode         string
	Config       Config
	Linkage      Linkage
	Participants []*Participant

	State     State
	Running   bool
	StartedAt time.Time

	Mu sync.Mutex

	// OnFinished is invoked exactly once, after the room reaches its
	// terminal state. Assigned by the RoomStore before Start.
	OnFinished func(res Result)

	ended  bool
	stopCh chan struct{}
}

// NewRoom builds an idle room with paddles centered and the ball served
// from the middle.
func NewRoom(mode string, cfg Config, participants []*Participant, linkage Linkage) *Room {
	r := &Room{
		ID:           uuid.New(),
		Mode:         mode,
		Config:       cfg,
		Linkage:      linkage,
		Participants: participants,
		stopCh:       make(chan struct{}),
	}
	center := (cfg.CanvasSize - cfg.PaddleSize) / 2
	for _, p := range participants {
		p.PaddlePos = center
	}
	r.resetBallUnsafe()
	return r
}

// Start marks the room running and launches its tick loop.
func (r *Room) Start() {
	r.Mu.Lock()
	if r.Running || r.ended {
		r.Mu.Unlock()
		return
	}
	r.Running = true
	r.StartedAt = time.Now()
	r.Mu.Unlock()

	go r.run()
}

func (r *Room) run() {
	ticker := time.NewTicker(time.Second / TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// tick advances the simulation by one step: move the ball, resolve paddle
// and wall contacts, apply scoring, check the win condition, and broadcast
// the updated state. Runs only on the room's own tick goroutine.
func (r *Room) tick() {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.ended {
		return
	}

	st := &r.State
	cfg := r.Config
	st.BallX += st.BallVX
	st.BallY += st.BallVY

	// x axis: left and right edges are always defended in both modes.
	if st.BallVX < 0 && st.BallX-BallRadius <= cfg.PaddleThickness {
		if p := r.participantAt(PositionLeft); p != nil && r.paddleCovers(p, st.BallY) {
			st.BallVX = -st.BallVX
			st.BallX = cfg.PaddleThickness + BallRadius
			p.Hits++
		} else if st.BallX <= 0 {
			if r.concedeUnsafe(PositionLeft) {
				return
			}
		}
	} else if st.BallVX > 0 && st.BallX+BallRadius >= cfg.CanvasSize-cfg.PaddleThickness {
		if p := r.participantAt(PositionRight); p != nil && r.paddleCovers(p, st.BallY) {
			st.BallVX = -st.BallVX
			st.BallX = cfg.CanvasSize - cfg.PaddleThickness - BallRadius
			p.Hits++
		} else if st.BallX >= cfg.CanvasSize {
			if r.concedeUnsafe(PositionRight) {
				return
			}
		}
	}

	// y axis: plain walls in 1v1, scoring paddle edges in 2v2.
	if r.Mode == Mode1v1 {
		if st.BallVY < 0 && st.BallY-BallRadius <= 0 {
			st.BallVY = -st.BallVY
			st.BallY = BallRadius
		} else if st.BallVY > 0 && st.BallY+BallRadius >= cfg.CanvasSize {
			st.BallVY = -st.BallVY
			st.BallY = cfg.CanvasSize - BallRadius
		}
	} else {
		if st.BallVY < 0 && st.BallY-BallRadius <= cfg.PaddleThickness {
			if p := r.participantAt(PositionTop); p != nil && r.paddleCovers(p, st.BallX) {
				st.BallVY = -st.BallVY
				st.BallY = cfg.PaddleThickness + BallRadius
				p.Hits++
			} else if st.BallY <= 0 {
				if r.concedeUnsafe(PositionTop) {
					return
				}
			}
		} else if st.BallVY > 0 && st.BallY+BallRadius >= cfg.CanvasSize-cfg.PaddleThickness {
			if p := r.participantAt(PositionBottom); p != nil && r.paddleCovers(p, st.BallX) {
				st.BallVY = -st.BallVY
				st.BallY = cfg.CanvasSize - cfg.PaddleThickness - BallRadius
				p.Hits++
			} else if st.BallY >= cfg.CanvasSize {
				if r.concedeUnsafe(PositionBottom) {
					return
				}
			}
		}
	}

	r.broadcastStateUnsafe()
}

// concedeUnsafe credits a point to the team opposing the given edge's
// owner, resets the ball, and ends the match if the winning score is
// reached. Returns true when the match ended this tick.
func (r *Room) concedeUnsafe(position string) bool {
	owner := r.participantAt(position)
	if owner == nil {
		return false
	}
	scoringTeam := 3 - owner.Team
	if scoringTeam == 1 {
		r.State.Team1Score++
	} else {
		r.State.Team2Score++
	}
	r.resetBallUnsafe()

	if r.State.Team1Score >= WinningScore {
		r.finishUnsafe(1, "score")
		return true
	}
	if r.State.Team2Score >= WinningScore {
		r.finishUnsafe(2, "score")
		return true
	}
	return false
}

// resetBallUnsafe serves the ball from center with a fixed-magnitude
// horizontal component in a random direction. The vertical component is
// redrawn until it clears MinVerticalSpeed so the ball can never settle
// into a flat rally.
func (r *Room) resetBallUnsafe() {
	cfg := r.Config
	r.State.BallX = cfg.CanvasSize / 2
	r.State.BallY = cfg.CanvasSize / 2

	r.State.BallVX = cfg.BallSpeed
	if rand.Intn(2) == 0 {
		r.State.BallVX = -cfg.BallSpeed
	}
	vy := (rand.Float64()*2 - 1) * cfg.BallSpeed
	for vy > -MinVerticalSpeed && vy < MinVerticalSpeed {
		vy = (rand.Float64()*2 - 1) * cfg.BallSpeed
	}
	r.State.BallVY = vy
}

// HandleMove applies a paddle-move message from a participant. The target
// coordinate is clamped server side; the client's own clamping is never
// trusted.
func (r *Room) HandleMove(userID int64, newPosition float64) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.ended {
		return
	}
	p := r.participantByID(userID)
	if p == nil {
		return
	}
	p.PaddlePos = clamp(newPosition, 0, r.Config.CanvasSize-r.Config.PaddleSize)
}

// HandleLeave ends the match immediately with the leaving participant's
// team as loser, regardless of score. Used for both explicit leaves and
// transport drops. There is no paused state.
func (r *Room) HandleLeave(userID int64) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	p := r.participantByID(userID)
	if p == nil {
		return
	}
	r.finishUnsafe(3-p.Team, "forfeit")
}

// finishUnsafe runs the terminal sequence at most once per room: stop the
// tick loop, broadcast match_over, and hand the result to OnFinished.
// Callers hold r.Mu.
func (r *Room) finishUnsafe(winnerTeam int, reason string) {
	if r.ended {
		return
	}
	r.ended = true
	r.Running = false
	close(r.stopCh)

	var winners, losers []int64
	for _, p := range r.Participants {
		if p.Team == winnerTeam {
			winners = append(winners, p.UserID)
		} else {
			losers = append(losers, p.UserID)
		}
	}

	res := Result{
		RoomID:  r.ID,
		Linkage: r.Linkage,
		Winners: winners,
		Losers:  losers,
		Reason:  reason,
		Record:  r.buildRecordUnsafe(winnerTeam, reason == "forfeit"),
	}

	log.Printf("room %s: match over, winners=%v losers=%v reason=%s", r.ID, winners, losers, reason)
	r.broadcastUnsafe(map[string]interface{}{
		"type":    "match_over",
		"winners": winners,
		"losers":  losers,
		"reason":  reason,
	})

	if r.OnFinished != nil {
		// Run the store's finish hook off the tick path; it takes its
		// own locks and issues the persistence writes.
		go r.OnFinished(res)
	}
}

// buildRecordUnsafe assembles the persisted match row. Only the first
// member of each team is recorded as the primary pair; in 2v2 the other
// two identities are intentionally absent from the match row.
func (r *Room) buildRecordUnsafe(winnerTeam int, forfeit bool) models.MatchRecord {
	rec := models.MatchRecord{
		RoomID:     r.ID,
		Mode:       r.Mode,
		Team1Score: r.State.Team1Score,
		Team2Score: r.State.Team2Score,
		WinnerTeam: winnerTeam,
		Forfeit:    forfeit,
		Duration:   time.Since(r.StartedAt),
	}
	if r.Linkage.Kind == LinkageTournament {
		rec.TournamentID = r.Linkage.TournamentID
	}
	for _, p := range r.Participants {
		if p.Team == 1 && rec.Player1ID == 0 {
			rec.Player1ID = p.UserID
		}
		if p.Team == 2 && rec.Player2ID == 0 {
			rec.Player2ID = p.UserID
		}
	}
	return rec
}

// Ended reports whether the room has reached its terminal state.
func (r *Room) Ended() bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.ended
}

func (r *Room) participantAt(position string) *Participant {
	for _, p := range r.Participants {
		if p.Position == position {
			return p
		}
	}
	return nil
}

func (r *Room) participantByID(userID int64) *Participant {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// paddleCovers reports whether the ball's transverse coordinate falls
// within the paddle's span.
func (r *Room) paddleCovers(p *Participant, transverse float64) bool {
	return transverse >= p.PaddlePos && transverse <= p.PaddlePos+r.Config.PaddleSize
}

func (r *Room) broadcastStateUnsafe() {
	players := make([]map[string]interface{}, 0, len(r.Participants))
	for _, p := range r.Participants {
		players = append(players, map[string]interface{}{
			"id":        p.UserID,
			"username":  p.Username,
			"team":      p.Team,
			"position":  p.Position,
			"paddlePos": p.PaddlePos,
			"hits":      p.Hits,
		})
	}
	r.broadcastUnsafe(map[string]interface{}{
		"type":       "state_update",
		"ballX":      r.State.BallX,
		"ballY":      r.State.BallY,
		"team1Score": r.State.Team1Score,
		"team2Score": r.State.Team2Score,
		"players":    players,
	})
}

// broadcastUnsafe fans a message out to every room member. Session writes
// are non-blocking, so holding the room lock here cannot stall the tick.
func (r *Room) broadcastUnsafe(msg map[string]interface{}) {
	for _, p := range r.Participants {
		if p.Sess != nil {
			p.Sess.Write(msg)
		}
	}
}
