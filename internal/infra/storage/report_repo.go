package storage

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// ReportsChannel es el canal de LISTEN/NOTIFY que usa cmd/reporter.
const ReportsChannel = "lobby_reports"

type ReportRepo struct{ db *sql.DB }

func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db} }

func (r *ReportRepo) Get(ctx context.Context, id int64) (domain.MatchReport, error) {
	var rep domain.MatchReport
	err := r.db.QueryRowContext(ctx, `
SELECT id, lobby_id, outcome, reporter, received_at
  FROM match_reports
 WHERE id = $1 AND processed_at IS NULL
`, id).Scan(&rep.ID, &rep.LobbyID, &rep.Outcome, &rep.Reporter, &rep.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MatchReport{}, ErrNotFound
	}
	return rep, err
}

// Pending: lo que quedó sin procesar (por ejemplo si el bot estaba caído).
func (r *ReportRepo) Pending(ctx context.Context, limit int) ([]domain.MatchReport, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, lobby_id, outcome, reporter, received_at
  FROM match_reports
 WHERE processed_at IS NULL
 ORDER BY received_at ASC
 LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.MatchReport
	for rows.Next() {
		var rep domain.MatchReport
		if err := rows.Scan(&rep.ID, &rep.LobbyID, &rep.Outcome, &rep.Reporter, &rep.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *ReportRepo) MarkProcessed(ctx context.Context, id int64, procErr error) error {
	var msg *string
	if procErr != nil {
		s := procErr.Error()
		msg = &s
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE match_reports SET processed_at = now(), error = $2 WHERE id = $1
`, id, msg)
	return err
}

// Listen bloquea escuchando ReportsChannel y llama fn con cada id notificado.
// Si la conexión se cae reintenta hasta que ctx se cancele.
func Listen(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, id int64)) {
	for ctx.Err() == nil {
		if err := listenOnce(ctx, pool, fn); err != nil && ctx.Err() == nil {
			log.Printf("[reports] listen: %v (reintento en 5s)", err)
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
		}
	}
}

func listenOnce(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, id int64)) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ReportsChannel); err != nil {
		return err
	}
	log.Printf("[reports] escuchando %s", ReportsChannel)
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(strings.TrimSpace(n.Payload), 10, 64)
		if err != nil {
			log.Printf("[reports] payload inválido %q", n.Payload)
			continue
		}
		fn(ctx, id)
	}
}

// PruneReports borra reportes procesados y claves de dedup viejas (janitor).
func PruneReports(ctx context.Context, pool *pgxpool.Pool, keep time.Duration) (int64, error) {
	tag, err := pool.Exec(ctx, `DELETE FROM match_reports WHERE processed_at IS NOT NULL AND processed_at < now() - $1::interval`, durToInterval(keep))
	if err != nil {
		return 0, err
	}
	if _, err := pool.Exec(ctx, `DELETE FROM report_dedup WHERE received_at < now() - $1::interval`, durToInterval(keep)); err != nil {
		return tag.RowsAffected(), err
	}
	return tag.RowsAffected(), nil
}
