package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchRecord is the persisted outcome of a finished room.
//
// Player1ID/Player2ID hold the primary pair only: in 2v2 the first member
// of each team. The remaining two identities are not recorded on the match
// row; they appear only in the win/loss tallies.
type MatchRecord struct {
	RoomID     uuid.UUID     `json:"room_id"`
	Mode       string        `json:"mode"`
	Player1ID  int64         `json:"player1_id"`
	Player2ID  int64         `json:"player2_id"`
	Team1Score int           `json:"team1_score"`
	Team2Score int           `json:"team2_score"`
	WinnerTeam int           `json:"winner_team"`
	Forfeit    bool          `json:"forfeit"`
	Duration   time.Duration `json:"duration"`

	// TournamentID is uuid.Nil for standalone matches.
	TournamentID uuid.UUID `json:"tournament_id,omitempty"`
}
