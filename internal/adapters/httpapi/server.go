// Package httpapi expone health, métricas y una vista de sólo lectura de
// colas y lobbies.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/app/lobby"
	"github.com/jose-valero/lobby-queue-bot/internal/app/matchmaking"
	"github.com/jose-valero/lobby-queue-bot/internal/domain"
	"github.com/jose-valero/lobby-queue-bot/internal/infra/cache"
)

type Queues interface {
	QueueIDs() []string
	Snapshot(ctx context.Context, queueID string) (matchmaking.Snapshot, domain.QueueConfig, error)
}

type Lobbies interface {
	Active() []lobby.View
}

// Mirror es opcional: si está, /queues/{id} lee de redis.
type Mirror interface {
	Read(ctx context.Context, queueID string) (cache.MirrorSnapshot, bool, error)
}

type Server struct {
	queues  Queues
	lobbies Lobbies
	mirror  Mirror
	metrics http.Handler
	ping    func(ctx context.Context) error
	mux     *http.ServeMux
	srv     *http.Server
}

type Option func(*Server)

func WithMirror(m Mirror) Option                    { return func(s *Server) { s.mirror = m } }
func WithMetrics(h http.Handler) Option             { return func(s *Server) { s.metrics = h } }
func WithPing(f func(context.Context) error) Option { return func(s *Server) { s.ping = f } }

func New(queues Queues, lobbies Lobbies, opts ...Option) *Server {
	s := &Server{queues: queues, lobbies: lobbies, mux: http.NewServeMux()}
	for _, o := range opts {
		o(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /queues", s.handleQueues)
	s.mux.HandleFunc("GET /queues/{id}", s.handleQueue)
	s.mux.HandleFunc("GET /lobbies", s.handleLobbies)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQueues(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"queues": s.queues.QueueIDs()})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.mirror != nil {
		snap, ok, err := s.mirror.Read(r.Context(), id)
		if err != nil {
			log.Printf("[http] mirror %s: %v", id, err)
		} else if ok {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}
	// sólo colas que ya existen; no creamos colas por un GET
	if !slices.Contains(s.queues.QueueIDs(), id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "queue not found"})
		return
	}
	snap, _, err := s.queues.Snapshot(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cache.SnapshotOf(id, snap.At, snap.Entries))
}

type lobbyJSON struct {
	ID      string     `json:"id"`
	QueueID string     `json:"queue_id"`
	State   string     `json:"state"`
	Teams   [][]string `json:"teams"`
	Hosts   []string   `json:"hosts,omitempty"`
	Map     string     `json:"map,omitempty"`
	Created time.Time  `json:"created_at"`
	Started *time.Time `json:"started_at,omitempty"`
}

func (s *Server) handleLobbies(w http.ResponseWriter, _ *http.Request) {
	views := s.lobbies.Active()
	out := make([]lobbyJSON, 0, len(views))
	for _, v := range views {
		lj := lobbyJSON{
			ID: v.ID, QueueID: v.QueueID, State: v.State.String(),
			Hosts: v.Hosts, Map: v.Map, Created: v.CreatedAt,
		}
		for _, t := range v.Teams {
			lj.Teams = append(lj.Teams, t.PlayerIDs())
		}
		if !v.StartedAt.IsZero() {
			st := v.StartedAt
			lj.Started = &st
		}
		out = append(out, lj)
	}
	writeJSON(w, http.StatusOK, map[string]any{"lobbies": out})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] encode: %v", err)
	}
}

// Start bloquea hasta Shutdown.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("🌐 HTTP listening on %s", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
