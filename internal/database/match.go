// internal/database/match.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ponghall/ponghall/internal/models"
)

// MatchRecorder persists finished-match rows and win/loss tallies.
// Implements game.ResultRecorder.
type MatchRecorder struct{}

// SaveMatch inserts one match row per finished room. A room id collision
// (a re-issued write for the same termination) updates rather than
// duplicates the row.
func (MatchRecorder) SaveMatch(ctx context.Context, rec models.MatchRecord) error {
	q := `
		INSERT INTO matches (id, mode, player1_id, player2_id, team1_score, team2_score,
		                     winner_team, forfeit, duration_ms, tournament_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			team1_score = EXCLUDED.team1_score,
			team2_score = EXCLUDED.team2_score,
			winner_team = EXCLUDED.winner_team,
			forfeit     = EXCLUDED.forfeit,
			duration_ms = EXCLUDED.duration_ms
	`
	var tournamentID interface{}
	if rec.TournamentID != uuid.Nil {
		tournamentID = rec.TournamentID
	}
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q,
			rec.RoomID, rec.Mode, rec.Player1ID, rec.Player2ID,
			rec.Team1Score, rec.Team2Score, rec.WinnerTeam, rec.Forfeit,
			rec.Duration.Milliseconds(), tournamentID,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("failed to insert match %s: %w", rec.RoomID, err)
	}
	return nil
}

// RecordOutcome bumps the win and loss counters for every participant of a
// finished match in one transaction.
func (MatchRecorder) RecordOutcome(ctx context.Context, winners, losers []int64) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, id := range winners {
			if _, e := tx.Exec(ctx, `UPDATE users SET wins = wins + 1 WHERE id = $1`, id); e != nil {
				return e
			}
		}
		for _, id := range losers {
			if _, e := tx.Exec(ctx, `UPDATE users SET losses = losses + 1 WHERE id = $1`, id); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update win/loss tallies: %w", err)
	}
	return nil
}
