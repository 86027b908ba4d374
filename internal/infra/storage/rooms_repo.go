package storage

import (
	"context"
	"database/sql"

	pq "github.com/lib/pq"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// RoomsRepo persiste los canales creados por lobby para poder borrarlos
// aunque el bot se reinicie.
type RoomsRepo struct{ db *sql.DB }

func NewRoomsRepo(db *sql.DB) *RoomsRepo { return &RoomsRepo{db: db} }

func (r *RoomsRepo) Save(ctx context.Context, lobbyID string, h domain.ChannelHandles) error {
	voice := h.TeamVoice
	if voice == nil {
		voice = []string{}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO lobby_rooms (lobby_id, guild_id, category_id, text_id, team_voice, updated_at)
VALUES ($1,$2,$3,$4,$5,now())
ON CONFLICT (lobby_id) DO UPDATE SET
  guild_id=$2, category_id=$3, text_id=$4, team_voice=$5, updated_at=now()
`, lobbyID, h.GuildID, h.CategoryID, h.TextID, pq.Array(voice))
	return err
}

func (r *RoomsRepo) Delete(ctx context.Context, lobbyID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM lobby_rooms WHERE lobby_id=$1`, lobbyID)
	return err
}

func (r *RoomsRepo) List(ctx context.Context) (map[string]domain.ChannelHandles, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT lobby_id, guild_id, category_id, text_id, team_voice FROM lobby_rooms
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]domain.ChannelHandles{}
	for rows.Next() {
		var (
			id string
			h  domain.ChannelHandles
		)
		if err := rows.Scan(&id, &h.GuildID, &h.CategoryID, &h.TextID, pq.Array(&h.TeamVoice)); err != nil {
			return nil, err
		}
		out[id] = h
	}
	return out, rows.Err()
}
