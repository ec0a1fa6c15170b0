// internal/matchmaking/pool.go
package matchmaking

import (
	"fmt"
	"log"
	"math/rand"
	"sync"

	"github.com/ponghall/ponghall/internal/game"
	"github.com/ponghall/ponghall/internal/session"
)

// requiredPlayers maps each mode to the count needed to form a room.
var requiredPlayers = map[string]int{
	game.Mode1v1: 2,
	game.Mode2v2: 4,
}

// QueueEntry is one session waiting in a mode's queue, in strict arrival
// order, together with the custom settings it asked for.
type QueueEntry struct {
	Sess     *session.Session
	Settings *game.CustomSettings
}

// Pool holds one FIFO queue per mode and forms a room the moment a queue
// reaches its mode's required count.
type Pool struct {
	mu     sync.Mutex
	queues map[string][]*QueueEntry

	Rooms *game.RoomStore
}

func NewPool(rooms *game.RoomStore) *Pool {
	return &Pool{
		queues: make(map[string][]*QueueEntry),
		Rooms:  rooms,
	}
}

// Enqueue appends the session to the given mode's queue. A session already
// waiting in any queue is rejected without state change. When the queue
// reaches the mode's required count the oldest entries form a room
// atomically with the append.
func (p *Pool) Enqueue(sess *session.Session, mode string, settings *game.CustomSettings) error {
	required, ok := requiredPlayers[mode]
	if !ok {
		return fmt.Errorf("unknown mode %q", mode)
	}

	p.mu.Lock()
	for m, q := range p.queues {
		for _, e := range q {
			if e.Sess.UserID == sess.UserID {
				p.mu.Unlock()
				log.Printf("matchmaking: user %d already queued for %s, ignoring join_queue", sess.UserID, m)
				return fmt.Errorf("already in the %s queue", m)
			}
		}
	}

	p.queues[mode] = append(p.queues[mode], &QueueEntry{Sess: sess, Settings: settings})

	var matched []*QueueEntry
	if len(p.queues[mode]) >= required {
		matched = p.queues[mode][:required]
		p.queues[mode] = append([]*QueueEntry(nil), p.queues[mode][required:]...)
	}
	waiting := append([]*QueueEntry(nil), p.queues[mode]...)
	p.mu.Unlock()

	log.Printf("matchmaking: user %d joined the %s queue (%d/%d)", sess.UserID, mode, len(waiting)+len(matched), required)
	broadcastQueueDepth(waiting, len(waiting), required)
	if matched != nil {
		p.formRoom(mode, matched)
	}
	return nil
}

// Dequeue removes the identity's queue entry, whichever queue holds it and
// whichever connection enqueued it, and re-broadcasts that queue's depth.
// Matching by identity matters on reconnect: the evicted connection's entry
// must be removable through the replacement session. Stale disconnect
// cleanup cannot reach here for a live identity; the registry's unregister
// guard filters it first.
func (p *Pool) Dequeue(sess *session.Session) {
	p.mu.Lock()
	var mode string
	for m, q := range p.queues {
		for i, e := range q {
			if e.Sess.UserID == sess.UserID {
				p.queues[m] = append(q[:i:i], q[i+1:]...)
				mode = m
				break
			}
		}
		if mode != "" {
			break
		}
	}
	if mode == "" {
		p.mu.Unlock()
		return
	}
	waiting := append([]*QueueEntry(nil), p.queues[mode]...)
	p.mu.Unlock()

	log.Printf("matchmaking: user %d left the %s queue (%d waiting)", sess.UserID, mode, len(waiting))
	broadcastQueueDepth(waiting, len(waiting), requiredPlayers[mode])
}

// QueueDepth reports the current length of a mode's queue.
func (p *Pool) QueueDepth(mode string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queues[mode])
}

// formRoom seats the matched entries and hands the room to the simulation
// engine. The first queued player's settings govern the configuration.
func (p *Pool) formRoom(mode string, entries []*QueueEntry) {
	cfg := game.ResolveConfig(entries[0].Settings)
	participants := assignSeats(mode, entries)
	room := game.NewRoom(mode, cfg, participants, game.Linkage{Kind: game.LinkageStandalone})
	p.Rooms.StartRoom(room)
}

// assignSeats maps queue entries to teams and board positions. 1v1 keeps
// arrival order: first in goes left. 2v2 shuffles the four entries and
// splits them across one of two seating templates chosen by coin flip, so
// queue order never dictates the team split.
func assignSeats(mode string, entries []*QueueEntry) []*game.Participant {
	type seat struct {
		team     int
		position string
	}
	var seats []seat
	switch mode {
	case game.Mode2v2:
		shuffled := append([]*QueueEntry(nil), entries...)
		rand.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		entries = shuffled
		if rand.Intn(2) == 0 {
			// team 1 defends left+top, team 2 right+bottom
			seats = []seat{
				{1, game.PositionLeft}, {1, game.PositionTop},
				{2, game.PositionRight}, {2, game.PositionBottom},
			}
		} else {
			// team 1 defends left+bottom, team 2 right+top
			seats = []seat{
				{1, game.PositionLeft}, {1, game.PositionBottom},
				{2, game.PositionRight}, {2, game.PositionTop},
			}
		}
	default:
		seats = []seat{
			{1, game.PositionLeft},
			{2, game.PositionRight},
		}
	}

	participants := make([]*game.Participant, 0, len(entries))
	for i, e := range entries {
		participants = append(participants, &game.Participant{
			UserID:   e.Sess.UserID,
			Username: e.Sess.Username,
			Sess:     e.Sess,
			Team:     seats[i].team,
			Position: seats[i].position,
		})
	}
	return participants
}

func broadcastQueueDepth(entries []*QueueEntry, size, required int) {
	msg := map[string]interface{}{
		"type":         "queue_update",
		"queueSize":    size,
		"requiredSize": required,
	}
	for _, e := range entries {
		e.Sess.Write(msg)
	}
}
