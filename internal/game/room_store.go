// internal/game/room_store.go
package game

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ponghall/ponghall/internal/models"
)

// ResultRecorder is the durable-store boundary for finished matches.
// Implemented by the database package; nil in tests.
type ResultRecorder interface {
	SaveMatch(ctx context.Context, rec models.MatchRecord) error
	RecordOutcome(ctx context.Context, winners, losers []int64) error
}

// RoomStore owns every active room and routes member-scoped events
// (paddle moves, disconnects) to the right one.
type RoomStore struct {
	mu     sync.Mutex
	rooms  map[uuid.UUID]*Room
	byUser map[int64]*Room

	// Recorder persists match rows and win/loss tallies. Writes are
	// best-effort: failures are logged, never surfaced to the room.
	Recorder ResultRecorder

	// PublishFn, when set, pushes each finished match record onto the
	// match-history feed.
	PublishFn func(rec models.MatchRecord)

	// OnTournamentMatchEnd is the bracket controller's subscription to
	// tournament-linked room terminations. Wired at startup.
	OnTournamentMatchEnd func(tournamentID uuid.UUID, winners, losers []int64)
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:  make(map[uuid.UUID]*Room),
		byUser: make(map[int64]*Room),
	}
}

// StartRoom registers the room, announces match_start to its members and
// launches the tick loop. The store installs itself as the room's finish
// hook so termination side effects run exactly once.
func (s *RoomStore) StartRoom(r *Room) {
	r.OnFinished = s.roomFinished

	s.mu.Lock()
	s.rooms[r.ID] = r
	for _, p := range r.Participants {
		s.byUser[p.UserID] = r
	}
	s.mu.Unlock()

	players := make([]map[string]interface{}, 0, len(r.Participants))
	for _, p := range r.Participants {
		players = append(players, map[string]interface{}{
			"id":       p.UserID,
			"username": p.Username,
			"team":     p.Team,
			"position": p.Position,
		})
	}
	start := map[string]interface{}{
		"type":            "match_start",
		"roomId":          r.ID.String(),
		"players":         players,
		"mode":            r.Mode,
		"canvasSize":      r.Config.CanvasSize,
		"paddleSize":      r.Config.PaddleSize,
		"paddleThickness": r.Config.PaddleThickness,
		"paddleSpeed":     r.Config.PaddleSpeed,
	}
	if r.Linkage.Kind == LinkageTournament {
		start["tournamentId"] = r.Linkage.TournamentID.String()
	}
	for _, p := range r.Participants {
		if p.Sess != nil {
			p.Sess.Write(start)
		}
	}

	log.Printf("room %s: starting %s match with %d players", r.ID, r.Mode, len(r.Participants))
	r.Start()
}

// RoomFor returns the active room holding the given identity, if any.
func (s *RoomStore) RoomFor(userID int64) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byUser[userID]
	return r, ok
}

// Get returns a room by id.
func (s *RoomStore) Get(id uuid.UUID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// HandleMove routes a paddle-move message to the sender's room.
func (s *RoomStore) HandleMove(userID int64, newPosition float64) {
	if r, ok := s.RoomFor(userID); ok {
		r.HandleMove(userID, newPosition)
	}
}

// HandleLeave forfeits the room the identity is in, if any. Covers both
// the explicit leave message and transport drops.
func (s *RoomStore) HandleLeave(userID int64) {
	if r, ok := s.RoomFor(userID); ok {
		r.HandleLeave(userID)
	}
}

// roomFinished runs the store-side terminal sequence for one room. The
// persistence writes are issued before the tournament continuation fires,
// so bracket progression never observes a round whose result write was
// never attempted.
func (s *RoomStore) roomFinished(res Result) {
	s.persistResult(res)

	if res.Linkage.Kind == LinkageTournament && s.OnTournamentMatchEnd != nil {
		s.OnTournamentMatchEnd(res.Linkage.TournamentID, res.Winners, res.Losers)
	}

	s.mu.Lock()
	delete(s.rooms, res.RoomID)
	for _, id := range res.Winners {
		if s.byUser[id] != nil && s.byUser[id].ID == res.RoomID {
			delete(s.byUser, id)
		}
	}
	for _, id := range res.Losers {
		if s.byUser[id] != nil && s.byUser[id].ID == res.RoomID {
			delete(s.byUser, id)
		}
	}
	s.mu.Unlock()
}

// persistResult issues the best-effort durable writes for a finished room:
// one match row, win/loss tallies, and the match-history feed entry.
func (s *RoomStore) persistResult(res Result) {
	if s.Recorder != nil {
		go func(rec models.MatchRecord, winners, losers []int64) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Recorder.SaveMatch(ctx, rec); err != nil {
				log.Printf("room %s: failed to persist match result: %v", rec.RoomID, err)
			}
			if err := s.Recorder.RecordOutcome(ctx, winners, losers); err != nil {
				log.Printf("room %s: failed to update win/loss tallies: %v", rec.RoomID, err)
			}
		}(res.Record, res.Winners, res.Losers)
	}
	if s.PublishFn != nil {
		s.PublishFn(res.Record)
	}
}
