package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	pq "github.com/lib/pq"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// MatchRepo guarda el historial: matches cerrados y leavers.
type MatchRepo struct{ db *sql.DB }

func NewMatchRepo(db *sql.DB) *MatchRepo { return &MatchRepo{db: db} }

func (r *MatchRepo) Archive(ctx context.Context, rec domain.MatchRecord) error {
	teams, err := json.Marshal(rec.Teams)
	if err != nil {
		return err
	}
	var winner *int
	if rec.Outcome.Kind == domain.OutcomeWin {
		w := rec.Outcome.Winner
		winner = &w
	}
	leavers := rec.Leavers
	if leavers == nil {
		leavers = []string{}
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO matches (lobby_id, queue_id, map, outcome, winner, teams, leavers, started_at, ended_at)
VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7,$8,$9)
ON CONFLICT (lobby_id) DO NOTHING
`, rec.LobbyID, rec.QueueID, rec.Map, string(rec.Outcome.Kind), winner, string(teams),
		pq.Array(leavers), nullTime(rec.StartedAt), nullTime(rec.EndedAt))
	return err
}

// RecentMaps devuelve los últimos n mapas jugados en la cola (el más nuevo primero).
func (r *MatchRepo) RecentMaps(ctx context.Context, queueID string, n int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT map
  FROM matches
 WHERE queue_id = $1 AND map <> '' AND outcome <> 'cancel'
 ORDER BY ended_at DESC NULLS LAST
 LIMIT $2
`, queueID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MatchRepo) RecordLeaver(ctx context.Context, l domain.LeaverRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO match_leavers (player_id, lobby_id, kind, at) VALUES ($1,$2,$3,$4)
`, l.PlayerID, l.LobbyID, string(l.Kind), l.At)
	return err
}

func (r *MatchRepo) ListLeavers(ctx context.Context, limit int) ([]domain.LeaverRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT player_id, lobby_id, kind, at
  FROM match_leavers
 ORDER BY at DESC
 LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.LeaverRecord
	for rows.Next() {
		var (
			l    domain.LeaverRecord
			kind string
		)
		if err := rows.Scan(&l.PlayerID, &l.LobbyID, &kind, &l.At); err != nil {
			return nil, err
		}
		l.Kind = domain.LeaverKind(kind)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Prune borra matches y leavers más viejos que keep (janitor).
func (r *MatchRepo) Prune(ctx context.Context, keep time.Duration) (int64, error) {
	var n int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE created_at < now() - $1::interval`, durToInterval(keep))
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		_, err = tx.ExecContext(ctx, `DELETE FROM match_leavers WHERE at < now() - $1::interval`, durToInterval(keep))
		return err
	})
	return n, err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
