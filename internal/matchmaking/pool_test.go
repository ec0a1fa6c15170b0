// internal/matchmaking/pool_test.go
package matchmaking

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ponghall/ponghall/internal/game"
	"github.com/ponghall/ponghall/internal/session"
)

func newTestSession(id int64) *session.Session {
	return session.New(id, fmt.Sprintf("user%d", id))
}

func drain(s *session.Session) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		select {
		case msg, ok := <-s.OutChan:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func findType(msgs []map[string]interface{}, msgType string) map[string]interface{} {
	for _, m := range msgs {
		if m["type"] == msgType {
			return m
		}
	}
	return nil
}

func TestNoRoomBelowRequiredCount(t *testing.T) {
	rooms := game.NewRoomStore()
	p := NewPool(rooms)
	s1 := newTestSession(1)

	require.NoError(t, p.Enqueue(s1, game.Mode1v1, nil))
	assert.Equal(t, 1, p.QueueDepth(game.Mode1v1))

	msgs := drain(s1)
	update := findType(msgs, "queue_update")
	require.NotNil(t, update)
	assert.Equal(t, 1, update["queueSize"])
	assert.Equal(t, 2, update["requiredSize"])
	assert.Nil(t, findType(msgs, "match_start"))
	_, ok := rooms.RoomFor(1)
	assert.False(t, ok)
}

func TestSecondPlayerForms1v1Room(t *testing.T) {
	rooms := game.NewRoomStore()
	p := NewPool(rooms)
	s1 := newTestSession(1)
	s2 := newTestSession(2)

	require.NoError(t, p.Enqueue(s1, game.Mode1v1, nil))
	require.NoError(t, p.Enqueue(s2, game.Mode1v1, nil))
	defer rooms.HandleLeave(1)

	assert.Equal(t, 0, p.QueueDepth(game.Mode1v1))

	r, ok := rooms.RoomFor(1)
	require.True(t, ok)
	r2, ok := rooms.RoomFor(2)
	require.True(t, ok)
	assert.Equal(t, r.ID, r2.ID)

	// Arrival order fixes the seating: first in defends left for team 1.
	start := findType(drain(s1), "match_start")
	require.NotNil(t, start)
	players := start["players"].([]map[string]interface{})
	require.Len(t, players, 2)
	assert.Equal(t, int64(1), players[0]["id"])
	assert.Equal(t, "left", players[0]["position"])
	assert.Equal(t, 1, players[0]["team"])
	assert.Equal(t, int64(2), players[1]["id"])
	assert.Equal(t, "right", players[1]["position"])
	assert.Equal(t, 2, players[1]["team"])
}

func TestFirstQueuedPlayersSettingsGovernTheRoom(t *testing.T) {
	rooms := game.NewRoomStore()
	p := NewPool(rooms)
	s1 := newTestSession(1)
	s2 := newTestSession(2)

	require.NoError(t, p.Enqueue(s1, game.Mode1v1, &game.CustomSettings{
		CanvasWidth: 1000,
		BallSpeed:   50, // out of range, clamps to max
	}))
	require.NoError(t, p.Enqueue(s2, game.Mode1v1, &game.CustomSettings{
		CanvasWidth: 500,
	}))
	defer rooms.HandleLeave(1)

	r, ok := rooms.RoomFor(1)
	require.True(t, ok)
	assert.Equal(t, 1000.0, r.Config.CanvasSize)
	assert.Equal(t, game.MaxBallSpeed, r.Config.BallSpeed)
}

func TestDuplicateEnqueueRejectedAcrossModes(t *testing.T) {
	rooms := game.NewRoomStore()
	p := NewPool(rooms)
	s1 := newTestSession(1)

	require.NoError(t, p.Enqueue(s1, game.Mode2v2, nil))
	assert.Error(t, p.Enqueue(s1, game.Mode2v2, nil))
	assert.Error(t, p.Enqueue(s1, game.Mode1v1, nil))
	assert.Equal(t, 1, p.QueueDepth(game.Mode2v2))
	assert.Equal(t, 0, p.QueueDepth(game.Mode1v1))
}

func TestUnknownModeRejected(t *testing.T) {
	p := NewPool(game.NewRoomStore())
	assert.Error(t, p.Enqueue(newTestSession(1), "3v3", nil))
}

func TestDequeueRemovesOnlyThatConnection(t *testing.T) {
	rooms := game.NewRoomStore()
	p := NewPool(rooms)
	s1 := newTestSession(1)
	s2 := newTestSession(2)
	s3 := newTestSession(3)

	require.NoError(t, p.Enqueue(s1, game.Mode2v2, nil))
	require.NoError(t, p.Enqueue(s2, game.Mode2v2, nil))
	require.NoError(t, p.Enqueue(s3, game.Mode2v2, nil))
	drain(s1)

	p.Dequeue(s2)
	assert.Equal(t, 2, p.QueueDepth(game.Mode2v2))

	update := findType(drain(s1), "queue_update")
	require.NotNil(t, update)
	assert.Equal(t, 2, update["queueSize"])
	assert.Equal(t, 4, update["requiredSize"])

	// Dequeueing a session that is not queued is a no-op.
	p.Dequeue(newTestSession(9))
	assert.Equal(t, 2, p.QueueDepth(game.Mode2v2))
}

func TestDequeueMatchesByIdentityAfterReconnect(t *testing.T) {
	rooms := game.NewRoomStore()
	p := NewPool(rooms)
	old := newTestSession(1)
	require.NoError(t, p.Enqueue(old, game.Mode1v1, nil))
	old.Close()

	// The replacement connection clears the evicted connection's entry,
	// re-enqueues, and the next arrival pairs with the live session.
	replacement := newTestSession(1)
	p.Dequeue(replacement)
	assert.Equal(t, 0, p.QueueDepth(game.Mode1v1))
	require.NoError(t, p.Enqueue(replacement, game.Mode1v1, nil))

	require.NoError(t, p.Enqueue(newTestSession(2), game.Mode1v1, nil))
	defer rooms.HandleLeave(1)
	r, ok := rooms.RoomFor(1)
	require.True(t, ok)
	for _, part := range r.Participants {
		if part.UserID == 1 {
			assert.Same(t, replacement, part.Sess)
		}
	}
}

func TestDepartedPlayerNeverSeated(t *testing.T) {
	rooms := game.NewRoomStore()
	p := NewPool(rooms)
	s1 := newTestSession(1)
	s2 := newTestSession(2)
	s3 := newTestSession(3)

	require.NoError(t, p.Enqueue(s1, game.Mode1v1, nil))
	p.Dequeue(s1)
	require.NoError(t, p.Enqueue(s2, game.Mode1v1, nil))
	assert.Equal(t, 1, p.QueueDepth(game.Mode1v1))
	_, ok := rooms.RoomFor(2)
	require.False(t, ok, "no room may form while only one player waits")

	require.NoError(t, p.Enqueue(s3, game.Mode1v1, nil))
	defer rooms.HandleLeave(2)
	_, ok = rooms.RoomFor(1)
	assert.False(t, ok, "the departed player must not be seated")
	_, ok = rooms.RoomFor(2)
	assert.True(t, ok)
	_, ok = rooms.RoomFor(3)
	assert.True(t, ok)
}

func TestFourthPlayerForms2v2RoomWithValidSeating(t *testing.T) {
	rooms := game.NewRoomStore()
	p := NewPool(rooms)
	sessions := make([]*session.Session, 4)
	for i := range sessions {
		sessions[i] = newTestSession(int64(i + 1))
		require.NoError(t, p.Enqueue(sessions[i], game.Mode2v2, nil))
	}
	defer rooms.HandleLeave(1)

	assert.Equal(t, 0, p.QueueDepth(game.Mode2v2))
	r, ok := rooms.RoomFor(1)
	require.True(t, ok)
	require.Len(t, r.Participants, 4)

	// Whatever the shuffle produced, the seating must be one of the two
	// templates: each position filled once, two players per team, and
	// teammates on adjacent edges (left pairs with top or bottom).
	byPosition := map[string]*game.Participant{}
	teamCount := map[int]int{}
	for _, part := range r.Participants {
		byPosition[part.Position] = part
		teamCount[part.Team]++
	}
	for _, pos := range []string{"left", "right", "top", "bottom"} {
		require.NotNil(t, byPosition[pos], "position %s unfilled", pos)
	}
	assert.Equal(t, 2, teamCount[1])
	assert.Equal(t, 2, teamCount[2])
	assert.Equal(t, 1, byPosition["left"].Team)
	assert.Equal(t, 2, byPosition["right"].Team)
	assert.NotEqual(t, byPosition["top"].Team, byPosition["bottom"].Team)
}

func TestOldestEntriesFormTheRoom(t *testing.T) {
	rooms := game.NewRoomStore()
	p := NewPool(rooms)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, p.Enqueue(newTestSession(i), game.Mode1v1, nil))
	}
	defer rooms.HandleLeave(1)

	// Players 1 and 2 were matched; player 3 waits at the queue head.
	assert.Equal(t, 1, p.QueueDepth(game.Mode1v1))
	_, ok := rooms.RoomFor(1)
	assert.True(t, ok)
	_, ok = rooms.RoomFor(2)
	assert.True(t, ok)
	_, ok = rooms.RoomFor(3)
	assert.False(t, ok)
}
