// internal/game/room_store_test.go
package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ponghall/ponghall/internal/models"
)

// mockRecorder collects persistence calls instead of hitting postgres.
type mockRecorder struct {
	mu       sync.Mutex
	matches  []models.MatchRecord
	outcomes [][2][]int64
	saved    chan struct{}
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{saved: make(chan struct{}, 8)}
}

func (m *mockRecorder) SaveMatch(ctx context.Context, rec models.MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches = append(m.matches, rec)
	return nil
}

// RecordOutcome is the last write persistResult issues, so it carries the
// completion signal.
func (m *mockRecorder) RecordOutcome(ctx context.Context, winners, losers []int64) error {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, [2][]int64{winners, losers})
	m.mu.Unlock()
	m.saved <- struct{}{}
	return nil
}

func (m *mockRecorder) waitForPersist(t *testing.T) models.MatchRecord {
	t.Helper()
	select {
	case <-m.saved:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the match result writes")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matches[len(m.matches)-1]
}

func TestStartRoomAnnouncesMatchStart(t *testing.T) {
	store := NewRoomStore()
	r, s1, s2 := setupTestRoom(t)
	store.StartRoom(r)
	defer r.HandleLeave(1)

	found, ok := store.RoomFor(1)
	require.True(t, ok)
	assert.Equal(t, r.ID, found.ID)
	found, ok = store.Get(r.ID)
	require.True(t, ok)
	assert.Equal(t, r.ID, found.ID)

	start := messagesOfType(drainMessages(s1), "match_start")
	require.Len(t, start, 1)
	assert.Equal(t, r.ID.String(), start[0]["roomId"])
	assert.Equal(t, Mode1v1, start[0]["mode"])
	assert.Equal(t, r.Config.CanvasSize, start[0]["canvasSize"])
	assert.Equal(t, r.Config.PaddleSize, start[0]["paddleSize"])
	assert.NotContains(t, start[0], "tournamentId")

	start = messagesOfType(drainMessages(s2), "match_start")
	require.Len(t, start, 1)
}

func TestRoomFinishedPersistsBeforeCleanup(t *testing.T) {
	store := NewRoomStore()
	rec := newMockRecorder()
	store.Recorder = rec

	var published []models.MatchRecord
	store.PublishFn = func(r models.MatchRecord) { published = append(published, r) }

	r, _, _ := setupTestRoom(t)
	store.StartRoom(r)

	store.HandleLeave(2)
	require.True(t, r.Ended())

	saved := rec.waitForPersist(t)
	assert.Equal(t, r.ID, saved.RoomID)
	assert.Equal(t, Mode1v1, saved.Mode)
	assert.True(t, saved.Forfeit)
	assert.Equal(t, 1, saved.WinnerTeam)

	rec.mu.Lock()
	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, []int64{1}, rec.outcomes[0][0])
	assert.Equal(t, []int64{2}, rec.outcomes[0][1])
	rec.mu.Unlock()

	// The identity mappings are released once the room terminates.
	require.Eventually(t, func() bool {
		_, ok := store.RoomFor(1)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := store.Get(r.ID)
	assert.False(t, ok)

	require.Len(t, published, 1)
	assert.Equal(t, r.ID, published[0].RoomID)
}

func TestTournamentRoomNotifiesBracketHook(t *testing.T) {
	store := NewRoomStore()

	type hookCall struct {
		id      uuid.UUID
		winners []int64
		losers  []int64
	}
	calls := make(chan hookCall, 1)
	store.OnTournamentMatchEnd = func(id uuid.UUID, winners, losers []int64) {
		calls <- hookCall{id, winners, losers}
	}

	tid := uuid.New()
	s1 := newTestSession(1)
	s2 := newTestSession(2)
	r := NewRoom(Mode1v1, ResolveConfig(nil), []*Participant{
		{UserID: 1, Username: "user1", Sess: s1, Team: 1, Position: PositionLeft},
		{UserID: 2, Username: "user2", Sess: s2, Team: 2, Position: PositionRight},
	}, Linkage{Kind: LinkageTournament, TournamentID: tid})
	store.StartRoom(r)

	start := messagesOfType(drainMessages(s1), "match_start")
	require.Len(t, start, 1)
	assert.Equal(t, tid.String(), start[0]["tournamentId"])

	store.HandleLeave(1)

	select {
	case call := <-calls:
		assert.Equal(t, tid, call.id)
		assert.Equal(t, []int64{2}, call.winners)
		assert.Equal(t, []int64{1}, call.losers)
	case <-time.After(2 * time.Second):
		t.Fatal("bracket hook was never invoked")
	}
}

func TestMoveRoutingIgnoresUnknownIdentity(t *testing.T) {
	store := NewRoomStore()
	r, _, _ := setupTestRoom(t)
	store.StartRoom(r)
	defer r.HandleLeave(1)

	// Neither call may panic or touch the room.
	store.HandleMove(999, 100)
	store.HandleLeave(999)
	assert.False(t, r.Ended())
}
