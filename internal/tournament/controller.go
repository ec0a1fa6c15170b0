// internal/tournament/controller.go
package tournament

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ponghall/ponghall/internal/game"
	"github.com/ponghall/ponghall/internal/session"
)

// Recorder is the durable-store boundary for tournament bookkeeping.
// Implemented by the database package; nil in tests. Every write is
// best-effort: the in-memory bracket is authoritative for connected
// clients even when a row update fails.
type Recorder interface {
	CreateTournament(ctx context.Context, id uuid.UUID, name string, hostID int64) error
	SetStatus(ctx context.Context, id uuid.UUID, status string, winnerID int64) error
	AddPlayer(ctx context.Context, id uuid.UUID, userID int64) error
	RemovePlayer(ctx context.Context, id uuid.UUID, userID int64) error
	SetPlayerReady(ctx context.Context, id uuid.UUID, userID int64, ready bool) error
	SetPlayerEliminated(ctx context.Context, id uuid.UUID, userID int64) error
	DeleteTournament(ctx context.Context, id uuid.UUID) error
}

// Controller drives every tournament's lifecycle: admission, readiness,
// round pairing, the pre-match countdown, elimination and the winner
// declaration. One lock serializes all bracket state; countdown and
// next-round timers re-enter through Controller methods and are validated
// against the stored timer so a stale callback can never act.
type Controller struct {
	mu          sync.Mutex
	tournaments map[uuid.UUID]*Tournament

	// members maps each identity to the non-finished tournament it
	// currently participates in, non-eliminated. This is the global
	// one-tournament-at-a-time admission guard.
	members map[int64]uuid.UUID

	Rooms    *game.RoomStore
	Recorder Recorder

	// CountdownInterval and RoundDelay default to one second and
	// NextRoundDelay; tests shorten them.
	CountdownInterval time.Duration
	RoundDelay        time.Duration
}

func NewController(rooms *game.RoomStore) *Controller {
	return &Controller{
		tournaments:       make(map[uuid.UUID]*Tournament),
		members:           make(map[int64]uuid.UUID),
		Rooms:             rooms,
		CountdownInterval: time.Second,
		RoundDelay:        NextRoundDelay,
	}
}

// Create opens a new tournament in LOBBY with the caller as host and sole
// (not yet ready) participant.
func (c *Controller) Create(sess *session.Session, name string) (*Tournament, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tid, ok := c.members[sess.UserID]; ok {
		return nil, fmt.Errorf("already participating in tournament %s", tid)
	}
	if name == "" {
		name = fmt.Sprintf("%s's tournament", sess.Username)
	}

	t := &Tournament{
		ID:     uuid.New(),
		Name:   name,
		HostID: sess.UserID,
		Status: StatusLobby,
		Players: []*Player{{
			UserID:   sess.UserID,
			Username: sess.Username,
			Sess:     sess,
		}},
	}
	c.tournaments[t.ID] = t
	c.members[sess.UserID] = t.ID

	c.persist("create tournament", func(ctx context.Context) error {
		if err := c.Recorder.CreateTournament(ctx, t.ID, t.Name, t.HostID); err != nil {
			return err
		}
		return c.Recorder.AddPlayer(ctx, t.ID, t.HostID)
	})

	log.Printf("tournament %s: created by user %d", t.ID, sess.UserID)
	t.broadcast(t.rosterPayload())
	return t, nil
}

// Join admits a session into a LOBBY tournament, subject to the global
// one-tournament guard and the player cap.
func (c *Controller) Join(sess *session.Session, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tournaments[id]
	if !ok {
		return fmt.Errorf("tournament %s not found", id)
	}
	if tid, ok := c.members[sess.UserID]; ok {
		return fmt.Errorf("already participating in tournament %s", tid)
	}
	if t.Status != StatusLobby {
		return fmt.Errorf("tournament is not open for joining")
	}
	if len(t.Players) >= MaxPlayers {
		return fmt.Errorf("tournament is full")
	}

	t.Players = append(t.Players, &Player{
		UserID:   sess.UserID,
		Username: sess.Username,
		Sess:     sess,
	})
	c.members[sess.UserID] = t.ID

	c.persist("add tournament player", func(ctx context.Context) error {
		return c.Recorder.AddPlayer(ctx, t.ID, sess.UserID)
	})

	t.broadcast(t.rosterPayload())
	return nil
}

// SetReady toggles the caller's LOBBY readiness flag.
func (c *Controller) SetReady(sess *session.Session, id uuid.UUID, ready bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tournaments[id]
	if !ok {
		return fmt.Errorf("tournament %s not found", id)
	}
	if t.Status != StatusLobby {
		return fmt.Errorf("readiness can only change in the lobby")
	}
	p := t.player(sess.UserID)
	if p == nil {
		return fmt.Errorf("not a participant")
	}
	if p.Ready == ready {
		return nil
	}
	p.Ready = ready

	c.persist("set tournament ready", func(ctx context.Context) error {
		return c.Recorder.SetPlayerReady(ctx, t.ID, p.UserID, ready)
	})

	t.broadcast(t.rosterPayload())
	return nil
}

// Start transitions LOBBY -> IN_PROGRESS and schedules the first round.
// Host-only; requires at least MinPlayers, all ready.
func (c *Controller) Start(sess *session.Session, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tournaments[id]
	if !ok {
		return fmt.Errorf("tournament %s not found", id)
	}
	if t.HostID != sess.UserID {
		return fmt.Errorf("only the host can start the tournament")
	}
	if t.Status != StatusLobby {
		return fmt.Errorf("tournament already started")
	}
	if len(t.Players) < MinPlayers {
		return fmt.Errorf("need at least %d players to start", MinPlayers)
	}
	for _, p := range t.Players {
		if !p.Ready {
			return fmt.Errorf("not all players are ready")
		}
	}

	t.Status = StatusInProgress
	c.persist("set tournament in progress", func(ctx context.Context) error {
		return c.Recorder.SetStatus(ctx, t.ID, StatusInProgress, 0)
	})

	log.Printf("tournament %s: started with %d players", t.ID, len(t.Players))
	t.broadcast(t.rosterPayload())
	c.startNextMatchLocked(t)
	return nil
}

// Delete removes a LOBBY tournament and all its player records. Host-only.
func (c *Controller) Delete(sess *session.Session, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tournaments[id]
	if !ok {
		return fmt.Errorf("tournament %s not found", id)
	}
	if t.HostID != sess.UserID {
		return fmt.Errorf("only the host can delete the tournament")
	}
	if t.Status != StatusLobby {
		return fmt.Errorf("only a lobby-phase tournament can be deleted")
	}
	c.deleteLocked(t)
	return nil
}

func (c *Controller) deleteLocked(t *Tournament) {
	t.broadcast(map[string]interface{}{
		"type":         "tournament_deleted",
		"tournamentId": t.ID.String(),
	})
	for _, p := range t.Players {
		if c.members[p.UserID] == t.ID {
			delete(c.members, p.UserID)
		}
	}
	delete(c.tournaments, t.ID)

	c.persist("delete tournament", func(ctx context.Context) error {
		return c.Recorder.DeleteTournament(ctx, t.ID)
	})
	log.Printf("tournament %s: deleted", t.ID)
}

// Leave handles an explicit tournament_leave message.
func (c *Controller) Leave(sess *session.Session, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tournaments[id]
	if !ok {
		return fmt.Errorf("tournament %s not found", id)
	}
	if t.player(sess.UserID) == nil {
		return fmt.Errorf("not a participant")
	}
	c.departLocked(t, sess.UserID)
	return nil
}

// HandleDisconnect routes a dropped connection into the departure path of
// whichever tournament held the identity, if any.
func (c *Controller) HandleDisconnect(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tid, ok := c.members[userID]
	if !ok {
		return
	}
	t, ok := c.tournaments[tid]
	if !ok {
		delete(c.members, userID)
		return
	}
	c.departLocked(t, userID)
}

// departLocked is the shared departure path for leaves and disconnects.
// In LOBBY the player record is removed outright (the host's departure
// dissolves the lobby). While IN_PROGRESS the departing player is
// eliminated, any pending pairing and countdown for the tournament are
// cancelled, and the next round is recomputed immediately. The recompute
// can itself finish the tournament.
func (c *Controller) departLocked(t *Tournament, userID int64) {
	switch t.Status {
	case StatusLobby:
		if userID == t.HostID {
			c.deleteLocked(t)
			return
		}
		for i, p := range t.Players {
			if p.UserID == userID {
				t.Players = append(t.Players[:i], t.Players[i+1:]...)
				break
			}
		}
		delete(c.members, userID)
		c.persist("remove tournament player", func(ctx context.Context) error {
			return c.Recorder.RemovePlayer(ctx, t.ID, userID)
		})
		t.broadcast(t.rosterPayload())

	case StatusInProgress:
		c.cancelCountdownLocked(t)
		t.pairing = nil
		c.eliminateLocked(t, userID)
		t.broadcast(t.rosterPayload())
		log.Printf("tournament %s: user %d departed mid-tournament", t.ID, userID)
		c.startNextMatchLocked(t)
	}
}

// eliminateLocked marks a player eliminated. Monotonic: once set the flag
// never resets within the tournament.
func (c *Controller) eliminateLocked(t *Tournament, userID int64) {
	p := t.player(userID)
	if p == nil || p.Eliminated {
		return
	}
	p.Eliminated = true
	delete(c.members, userID)
	c.persist("set player eliminated", func(ctx context.Context) error {
		return c.Recorder.SetPlayerEliminated(ctx, t.ID, userID)
	})
}

// startNextMatchLocked computes the next round. With one or zero active
// players left the tournament finishes; otherwise the remaining players
// are shuffled and the first two become the round's pairing. Only one pair
// plays per round: this is a sequential gauntlet, not a balanced bracket,
// and the progression semantics depend on keeping it that way.
func (c *Controller) startNextMatchLocked(t *Tournament) {
	if t.Status != StatusInProgress || t.pairing != nil || t.countdownTimer != nil {
		return
	}
	// A round's match is still running; its result continuation computes
	// the next round when it lands.
	if t.activeRoomID != uuid.Nil {
		return
	}
	if t.nextRoundTimer != nil {
		t.nextRoundTimer.Stop()
		t.nextRoundTimer = nil
	}

	active := t.activePlayers()
	if len(active) <= 1 {
		c.finishLocked(t, active)
		return
	}

	shuffled := append([]*Player(nil), active...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	p1, p2 := shuffled[0], shuffled[1]
	t.pairing = &Pairing{
		Player1:   p1.UserID,
		Player2:   p2.UserID,
		confirmed: make(map[int64]bool),
	}

	log.Printf("tournament %s: round pairing %d vs %d (%d players remain)", t.ID, p1.UserID, p2.UserID, len(active))
	t.broadcast(map[string]interface{}{
		"type":         "tournament_round_pairing",
		"tournamentId": t.ID.String(),
		"player1":      map[string]interface{}{"id": p1.UserID, "username": p1.Username},
		"player2":      map[string]interface{}{"id": p2.UserID, "username": p2.Username},
	})
}

func (c *Controller) finishLocked(t *Tournament, active []*Player) {
	t.Status = StatusFinished
	var winner map[string]interface{}
	if len(active) == 1 {
		t.WinnerID = active[0].UserID
		winner = map[string]interface{}{
			"id":       active[0].UserID,
			"username": active[0].Username,
		}
	}
	c.persist("finish tournament", func(ctx context.Context) error {
		return c.Recorder.SetStatus(ctx, t.ID, StatusFinished, t.WinnerID)
	})

	log.Printf("tournament %s: finished, winner=%d", t.ID, t.WinnerID)
	t.broadcast(map[string]interface{}{
		"type":         "tournament_finished",
		"tournamentId": t.ID.String(),
		"winner":       winner,
	})

	for _, p := range t.Players {
		if c.members[p.UserID] == t.ID {
			delete(c.members, p.UserID)
		}
	}
	delete(c.tournaments, t.ID)
}

// ConfirmRoundReady records one paired player's readiness confirmation.
// Duplicate and out-of-pairing confirmations are ignored. Both confirming
// starts the countdown.
func (c *Controller) ConfirmRoundReady(sess *session.Session, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tournaments[id]
	if !ok || t.Status != StatusInProgress || t.pairing == nil {
		return
	}
	p := t.pairing
	if !p.involves(sess.UserID) || p.confirmed[sess.UserID] {
		return
	}
	p.confirmed[sess.UserID] = true

	if p.confirmed[p.Player1] && p.confirmed[p.Player2] {
		c.startCountdownLocked(t)
	}
}

func (c *Controller) startCountdownLocked(t *Tournament) {
	if t.countdownTimer != nil {
		return
	}
	t.countdownLeft = CountdownStart
	t.broadcast(map[string]interface{}{
		"type":         "tournament_countdown",
		"tournamentId": t.ID.String(),
		"secondsLeft":  t.countdownLeft,
	})
	c.armCountdownLocked(t)
}

func (c *Controller) armCountdownLocked(t *Tournament) {
	var timer *time.Timer
	timer = time.AfterFunc(c.CountdownInterval, func() {
		c.countdownStep(t.ID, timer)
	})
	t.countdownTimer = timer
}

func (c *Controller) cancelCountdownLocked(t *Tournament) {
	if t.countdownTimer != nil {
		t.countdownTimer.Stop()
		t.countdownTimer = nil
	}
}

// countdownStep fires once per second while a countdown runs. A fired
// timer that is no longer the tournament's current one is stale (the
// countdown was cancelled or replaced) and does nothing.
func (c *Controller) countdownStep(id uuid.UUID, timer *time.Timer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tournaments[id]
	if !ok || t.countdownTimer != timer {
		return
	}
	t.countdownTimer = nil
	t.countdownLeft--
	t.broadcast(map[string]interface{}{
		"type":         "tournament_countdown",
		"tournamentId": t.ID.String(),
		"secondsLeft":  t.countdownLeft,
	})
	if t.countdownLeft > 0 {
		c.armCountdownLocked(t)
		return
	}
	c.countdownExpiredLocked(t)
}

// countdownExpiredLocked re-validates the pairing at the moment of use: a
// third party may have caused an elimination mid-countdown. An invalid
// pairing is discarded and the round recomputed instead of surfacing an
// error to anyone.
func (c *Controller) countdownExpiredLocked(t *Tournament) {
	pairing := t.pairing
	t.pairing = nil
	if pairing == nil {
		return
	}

	p1 := t.player(pairing.Player1)
	p2 := t.player(pairing.Player2)
	if !playable(p1) || !playable(p2) {
		log.Printf("tournament %s: pairing invalid at countdown expiry, recomputing round", t.ID)
		c.startNextMatchLocked(t)
		return
	}

	t.broadcast(map[string]interface{}{
		"type":         "tournament_match_begin",
		"tournamentId": t.ID.String(),
		"player1":      p1.UserID,
		"player2":      p2.UserID,
	})

	room := game.NewRoom(game.Mode1v1, game.ResolveConfig(nil), []*game.Participant{
		{UserID: p1.UserID, Username: p1.Username, Sess: p1.Sess, Team: 1, Position: game.PositionLeft},
		{UserID: p2.UserID, Username: p2.Username, Sess: p2.Sess, Team: 2, Position: game.PositionRight},
	}, game.Linkage{Kind: game.LinkageTournament, TournamentID: t.ID})
	t.activeRoomID = room.ID
	c.Rooms.StartRoom(room)
}

func playable(p *Player) bool {
	return p != nil && !p.Eliminated && p.Sess != nil && !p.Sess.Closed()
}

// HandleMatchResult consumes a tournament-linked room's termination: mark
// the losers eliminated, re-broadcast the roster, and schedule the next
// round computation after a fixed delay. Wired as the RoomStore's
// OnTournamentMatchEnd hook.
func (c *Controller) HandleMatchResult(id uuid.UUID, winners, losers []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tournaments[id]
	if !ok || t.Status != StatusInProgress {
		return
	}
	t.activeRoomID = uuid.Nil
	for _, loser := range losers {
		c.eliminateLocked(t, loser)
	}
	t.broadcast(t.rosterPayload())

	if t.nextRoundTimer != nil {
		t.nextRoundTimer.Stop()
	}
	t.nextRoundTimer = time.AfterFunc(c.RoundDelay, func() {
		c.nextRound(id)
	})
}

func (c *Controller) nextRound(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tournaments[id]
	if !ok {
		return
	}
	t.nextRoundTimer = nil
	c.startNextMatchLocked(t)
}

// Get returns a tournament by id, for handlers and tests.
func (c *Controller) Get(id uuid.UUID) (*Tournament, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tournaments[id]
	return t, ok
}

// persist issues a best-effort durable write off the caller's goroutine.
// Failures are logged and swallowed: connected clients always see the
// in-memory outcome the broadcasts already described.
func (c *Controller) persist(op string, fn func(ctx context.Context) error) {
	if c.Recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("tournament store write failed (%s): %v", op, err)
		}
	}()
}
