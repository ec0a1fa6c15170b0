// internal/database/tournament.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TournamentRecorder persists tournament and tournament-player rows.
// Implements tournament.Recorder.
type TournamentRecorder struct{}

func (TournamentRecorder) CreateTournament(ctx context.Context, id uuid.UUID, name string, hostID int64) error {
	q := `
		INSERT INTO tournaments (id, name, host_id, status)
		VALUES ($1, $2, $3, 'LOBBY')
	`
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, id, name, hostID)
		return e
	})
	if err != nil {
		return fmt.Errorf("failed to insert tournament %s: %w", id, err)
	}
	return nil
}

// SetStatus advances the tournament row. winnerID 0 means no winner
// (an aborted finish with nobody left).
func (TournamentRecorder) SetStatus(ctx context.Context, id uuid.UUID, status string, winnerID int64) error {
	var winner interface{}
	if winnerID != 0 {
		winner = winnerID
	}
	q := `UPDATE tournaments SET status = $1, winner_id = $2 WHERE id = $3`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, status, winner, id)
		return e
	})
}

func (TournamentRecorder) AddPlayer(ctx context.Context, id uuid.UUID, userID int64) error {
	q := `
		INSERT INTO tournament_players (tournament_id, user_id, is_ready, is_eliminated)
		VALUES ($1, $2, false, false)
		ON CONFLICT (tournament_id, user_id) DO NOTHING
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, id, userID)
		return e
	})
}

func (TournamentRecorder) RemovePlayer(ctx context.Context, id uuid.UUID, userID int64) error {
	q := `DELETE FROM tournament_players WHERE tournament_id = $1 AND user_id = $2`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, id, userID)
		return e
	})
}

func (TournamentRecorder) SetPlayerReady(ctx context.Context, id uuid.UUID, userID int64, ready bool) error {
	q := `UPDATE tournament_players SET is_ready = $1 WHERE tournament_id = $2 AND user_id = $3`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, ready, id, userID)
		return e
	})
}

func (TournamentRecorder) SetPlayerEliminated(ctx context.Context, id uuid.UUID, userID int64) error {
	q := `UPDATE tournament_players SET is_eliminated = true WHERE tournament_id = $1 AND user_id = $2`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, id, userID)
		return e
	})
}

// DeleteTournament removes the tournament and its player rows. Only
// LOBBY-phase tournaments are ever deleted.
func (TournamentRecorder) DeleteTournament(ctx context.Context, id uuid.UUID) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, e := tx.Exec(ctx, `DELETE FROM tournament_players WHERE tournament_id = $1`, id); e != nil {
			return e
		}
		_, e := tx.Exec(ctx, `DELETE FROM tournaments WHERE id = $1`, id)
		return e
	})
	if err != nil {
		return fmt.Errorf("failed to delete tournament %s: %w", id, err)
	}
	return nil
}
