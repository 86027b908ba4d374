package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

type BanRepo struct{ db *sql.DB }

func NewBanRepo(db *sql.DB) *BanRepo { return &BanRepo{db: db} }

// SetBan: un ban por (jugador, cola); si ya hay uno gana el que vence después.
func (r *BanRepo) SetBan(ctx context.Context, b domain.Ban) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO bans (player_id, queue_id, until, reason, issued_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (player_id, queue_id) DO UPDATE SET
  until     = GREATEST(bans.until, EXCLUDED.until),
  reason    = EXCLUDED.reason,
  issued_by = EXCLUDED.issued_by
`, b.PlayerID, b.QueueID, b.Until, b.Reason, b.IssuedBy, b.CreatedAt)
	return err
}

func (r *BanRepo) ClearBan(ctx context.Context, playerID, queueID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM bans WHERE player_id = $1 AND queue_id = $2 AND until > now()
`, playerID, queueID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *BanRepo) ListBans(ctx context.Context, now time.Time) ([]domain.Ban, error) {
	return queryBans(ctx, r.db, `
SELECT player_id, queue_id, until, reason, issued_by, created_at
  FROM bans
 WHERE until > $1
 ORDER BY until ASC
`, now)
}

func (r *BanRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bans WHERE until <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func queryBans(ctx context.Context, db *sql.DB, q string, args ...any) ([]domain.Ban, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Ban
	for rows.Next() {
		var b domain.Ban
		if err := rows.Scan(&b.PlayerID, &b.QueueID, &b.Until, &b.Reason, &b.IssuedBy, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
