// reporter recibe resultados de partidas desde afuera (servidor de juego,
// panel web) y los deja en match_reports; el bot los aplica al recibir el
// pg_notify.
package main

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jose-valero/lobby-queue-bot/internal/infra/storage"
)

var (
	db          *pgxpool.Pool
	secretHdr   = getenv("REPORT_HEADER_NAME", "X-Lobby-Secret")
	secretValue = os.Getenv("REPORT_HEADER_VALUE")
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func init() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Println("DATABASE_URL empty; reports will be rejected")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := storage.OpenPool(ctx, dsn, 4)
	if err != nil {
		fmt.Println("pgxpool:", err)
		return
	}
	db = pool
}

type reportBody struct {
	LobbyID  string `json:"lobby_id"`
	Outcome  string `json:"outcome"`
	Reporter string `json:"reporter"`
}

var errBadReport = errors.New("bad report")

// parseReport valida lo mínimo; el resultado se interpreta en el bot, que
// conoce la cantidad de equipos del lobby.
func parseReport(body string) (reportBody, error) {
	var rb reportBody
	if err := json.Unmarshal([]byte(body), &rb); err != nil {
		return rb, fmt.Errorf("%w: %v", errBadReport, err)
	}
	rb.LobbyID = strings.TrimSpace(rb.LobbyID)
	rb.Outcome = strings.ToLower(strings.TrimSpace(rb.Outcome))
	if rb.LobbyID == "" || rb.Outcome == "" {
		return rb, fmt.Errorf("%w: lobby_id and outcome are required", errBadReport)
	}
	return rb, nil
}

func readSecret(req events.APIGatewayV2HTTPRequest) string {
	for _, k := range []string{strings.ToLower(secretHdr), secretHdr} {
		if v := req.Headers[k]; v != "" {
			return v
		}
	}
	return ""
}

func dedupKey(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func reply(code int, body string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: code,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	fmt.Printf("report hit | path=%s method=%s ip=%s b64=%v\n",
		req.RawPath, req.RequestContext.HTTP.Method, req.RequestContext.HTTP.SourceIP, req.IsBase64Encoded)

	// 1) secreto
	got := readSecret(req)
	if secretValue == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secretValue)) != 1 {
		fmt.Println("auth: unauthorized (missing/invalid secret)")
		return reply(401, `{"error":"unauthorized"}`), nil
	}

	// 2) body crudo
	body := req.Body
	if req.IsBase64Encoded {
		dec, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return reply(400, `{"error":"invalid base64"}`), nil
		}
		body = string(dec)
	}
	rb, err := parseReport(body)
	if err != nil {
		fmt.Println("body:", err)
		return reply(400, `{"error":"invalid report"}`), nil
	}
	if db == nil {
		return reply(503, `{"error":"no database"}`), nil
	}

	// 3) dedup: el mismo body dos veces se acepta una sola vez
	key := dedupKey(body)
	dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	tag, err := db.Exec(dctx, `INSERT INTO report_dedup(dedup_key) VALUES ($1) ON CONFLICT DO NOTHING`, key)
	cancel()
	if err != nil {
		fmt.Println("dedup insert:", err)
		return reply(500, `{"error":"db"}`), nil
	}
	if tag.RowsAffected() == 0 {
		return reply(200, `{"ok":true,"duplicate":true}`), nil
	}

	// 4) insert + notify
	var id int64
	ictx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err = db.QueryRow(ictx, `
INSERT INTO match_reports(lobby_id, outcome, reporter, payload)
VALUES ($1, $2, $3, $4::jsonb) RETURNING id`,
		rb.LobbyID, rb.Outcome, rb.Reporter, body,
	).Scan(&id)
	if err != nil {
		fmt.Println("report insert:", err)
		// liberar la clave para que el reintento entre
		_, _ = db.Exec(context.Background(), `DELETE FROM report_dedup WHERE dedup_key = $1`, key)
		return reply(500, `{"error":"db"}`), nil
	}
	if _, err := db.Exec(ictx, `SELECT pg_notify($1, $2)`, storage.ReportsChannel, fmt.Sprint(id)); err != nil {
		// el bot lo levanta igual al arrancar (Drain)
		fmt.Println("pg_notify:", err)
	}
	return reply(202, fmt.Sprintf(`{"ok":true,"id":%d}`, id)), nil
}

func main() { lambda.Start(handler) }
