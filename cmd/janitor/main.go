// janitor corre programado (EventBridge) y limpia historial viejo.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jose-valero/lobby-queue-bot/internal/infra/storage"
)

type retention struct {
	Matches time.Duration
	Reports time.Duration
	Strikes time.Duration
	Chat    time.Duration
	now     func() time.Time
}

func retentionFromEnv() retention {
	return retention{
		Matches: envDur("JANITOR_MATCHES_KEEP", 90*24*time.Hour),
		Reports: envDur("JANITOR_REPORTS_KEEP", 7*24*time.Hour),
		Strikes: envDur("JANITOR_STRIKES_IDLE", 30*24*time.Hour),
		Chat:    envDur("JANITOR_CHAT_KEEP", 30*24*time.Hour),
		now:     time.Now,
	}
}

func envDur(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		fmt.Printf("%s=%q inválido, uso %s\n", k, v, def)
		return def
	}
	return d
}

func handler(ctx context.Context) (string, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return "no DATABASE_URL", nil
	}
	ret := retentionFromEnv()

	db, err := storage.Open(ctx, dsn)
	if err != nil {
		return fmt.Sprintf("db: %v", err), nil
	}
	defer db.Close()
	pool, err := storage.OpenPool(ctx, dsn, 2)
	if err != nil {
		return fmt.Sprintf("pool: %v", err), nil
	}
	defer pool.Close()

	cctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	var out []string
	note := func(what string, n int64, err error) {
		if err != nil {
			out = append(out, fmt.Sprintf("%s: error %v", what, err))
			return
		}
		out = append(out, fmt.Sprintf("%s: %d", what, n))
	}

	n, err := storage.NewMatchRepo(db).Prune(cctx, ret.Matches)
	note("matches", n, err)
	n, err = storage.NewBanRepo(db).PurgeExpired(cctx, ret.now())
	note("bans", n, err)
	n, err = storage.PruneReports(cctx, pool, ret.Reports)
	note("reports", n, err)
	n, err = storage.NewProfileRepo(db).ResetStrikes(cctx, ret.Strikes)
	note("strikes", n, err)
	n, err = storage.NewChatLogRepo(db).Prune(cctx, ret.Chat)
	note("chat", n, err)

	summary := strings.Join(out, ", ")
	fmt.Println("janitor:", summary)
	return summary, nil
}

func main() { lambda.Start(handler) }
