package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pq "github.com/lib/pq"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

type ProfileRepo struct{ db *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

// GetProfile trae el jugador con sus bans vigentes.
func (r *ProfileRepo) GetProfile(ctx context.Context, playerID string) (domain.Profile, error) {
	var (
		p     domain.Profile
		roles []string
	)
	err := r.db.QueryRowContext(ctx, `
SELECT player_id, name, mu, sigma, region, roles, strikes, wins, losses, draws, updated_at
  FROM players
 WHERE player_id = $1
`, playerID).Scan(
		&p.ID, &p.Name, &p.Rating.Mu, &p.Rating.Sigma, &p.Region, pq.Array(&roles),
		&p.Strikes, &p.Wins, &p.Losses, &p.Draws, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, ErrNotFound
	}
	if err != nil {
		return domain.Profile{}, err
	}
	for _, role := range roles {
		p.Roles = append(p.Roles, domain.Role(role))
	}

	bans, err := queryBans(ctx, r.db, `
SELECT player_id, queue_id, until, reason, issued_by, created_at
  FROM bans
 WHERE player_id = $1 AND until > now()
`, playerID)
	if err != nil {
		return domain.Profile{}, err
	}
	p.Bans = bans
	return p, nil
}

func (r *ProfileRepo) UpsertProfile(ctx context.Context, p domain.Profile) error {
	roles := make([]string, len(p.Roles))
	for i, role := range p.Roles {
		roles[i] = string(role)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO players (player_id, name, mu, sigma, region, roles, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,now())
ON CONFLICT (player_id) DO UPDATE SET
  name       = EXCLUDED.name,
  region     = EXCLUDED.region,
  roles      = EXCLUDED.roles,
  updated_at = now()
`, p.ID, p.Name, p.Rating.Mu, p.Rating.Sigma, p.Region, pq.Array(roles))
	return err
}

// UpdateRating es la única escritura del rating; el upsert no lo pisa.
func (r *ProfileRepo) UpdateRating(ctx context.Context, playerID string, rt domain.Rating) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE players SET mu = $2, sigma = $3, updated_at = now() WHERE player_id = $1
`, playerID, rt.Mu, rt.Sigma)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProfileRepo) RecordResult(ctx context.Context, playerID string, res domain.PlayerResult) error {
	col := ""
	switch res {
	case domain.ResultWin:
		col = "wins"
	case domain.ResultLoss:
		col = "losses"
	case domain.ResultDraw:
		col = "draws"
	default:
		return fmt.Errorf("unknown result %q", res)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE players SET `+col+` = `+col+` + 1, updated_at = now() WHERE player_id = $1`, playerID)
	return err
}

func (r *ProfileRepo) IncrementStrike(ctx context.Context, playerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
UPDATE players SET strikes = strikes + 1, updated_at = now()
 WHERE player_id = $1
RETURNING strikes
`, playerID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return n, err
}

// ResetStrikes lo usa el janitor para perdonar strikes viejos.
func (r *ProfileRepo) ResetStrikes(ctx context.Context, idleFor time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE players SET strikes = 0
 WHERE strikes > 0
   AND NOT EXISTS (
     SELECT 1 FROM match_leavers l
      WHERE l.player_id = players.player_id AND l.at > now() - $1::interval
   )
`, durToInterval(idleFor))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ProfileRepo) Leaderboard(ctx context.Context, limit int) ([]domain.Profile, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT player_id, name, mu, sigma, wins, losses, draws
  FROM players
 WHERE wins + losses + draws > 0
 ORDER BY mu DESC, player_id ASC
 LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Rating.Mu, &p.Rating.Sigma, &p.Wins, &p.Losses, &p.Draws); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
