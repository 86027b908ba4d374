package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// QueueUI apunta al mensaje fijo que muestra la cola en Discord.
type QueueUI struct {
	QueueID        string
	QueueChannelID string
	QueueMessageID string
	UpdatedAt      time.Time
}

type UIRepo struct{ db *sql.DB }

func NewUIRepo(db *sql.DB) *UIRepo { return &UIRepo{db: db} }

func (r *UIRepo) Get(ctx context.Context, queueID string) (QueueUI, error) {
	var u QueueUI
	err := r.db.QueryRowContext(ctx, `
SELECT queue_id, queue_channel_id, queue_message_id, updated_at
  FROM queue_ui
 WHERE queue_id = $1
`, queueID).Scan(&u.QueueID, &u.QueueChannelID, &u.QueueMessageID, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return QueueUI{}, ErrNotFound
	}
	return u, err
}

func (r *UIRepo) Upsert(ctx context.Context, queueID, channelID, messageID string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO queue_ui (queue_id, queue_channel_id, queue_message_id)
VALUES ($1,$2,$3)
ON CONFLICT (queue_id) DO UPDATE SET
  queue_channel_id = EXCLUDED.queue_channel_id,
  queue_message_id = EXCLUDED.queue_message_id,
  updated_at       = now()
`, queueID, channelID, messageID)
	return err
}

func (r *UIRepo) Delete(ctx context.Context, queueID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM queue_ui WHERE queue_id = $1`, queueID)
	return err
}
