package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// ChatLogRepo guarda el chat de los canales de texto de los lobbies.
type ChatLogRepo struct{ db *sql.DB }

func NewChatLogRepo(db *sql.DB) *ChatLogRepo { return &ChatLogRepo{db: db} }

func (r *ChatLogRepo) Append(ctx context.Context, line domain.ChatLine) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO lobby_chat (lobby_id, queue_id, author_id, content, at) VALUES ($1,$2,$3,$4,$5)
`, line.LobbyID, line.QueueID, line.AuthorID, line.Content, line.At)
	return err
}

// ChatLog devuelve los últimos limit mensajes del lobby, viejos primero.
func (r *ChatLogRepo) ChatLog(ctx context.Context, lobbyID string, limit int) ([]domain.ChatLine, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT lobby_id, queue_id, author_id, content, at FROM (
  SELECT id, lobby_id, queue_id, author_id, content, at
    FROM lobby_chat
   WHERE lobby_id=$1
   ORDER BY id DESC
   LIMIT $2
) t ORDER BY id
`, lobbyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ChatLine
	for rows.Next() {
		var l domain.ChatLine
		if err := rows.Scan(&l.LobbyID, &l.QueueID, &l.AuthorID, &l.Content, &l.At); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Prune borra chat más viejo que keep (janitor).
func (r *ChatLogRepo) Prune(ctx context.Context, keep time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lobby_chat WHERE at < now() - $1::interval`, durToInterval(keep))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
