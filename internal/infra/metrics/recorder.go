package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder publica las métricas del matchmaking en un registry propio.
type Recorder struct {
	reg *prometheus.Registry

	queueEntries   *prometheus.GaugeVec
	queuePlayers   *prometheus.GaugeVec
	formations     *prometheus.CounterVec
	formationTime  *prometheus.HistogramVec
	transitions    *prometheus.CounterVec
	providerRetry  *prometheus.CounterVec
	lobbiesResolve *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		queueEntries: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lobbybot_queue_entries",
			Help: "Entradas (solos o grupos) esperando en la cola",
		}, []string{"queue"}),
		queuePlayers: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lobbybot_queue_players",
			Help: "Jugadores esperando en la cola",
		}, []string{"queue"}),
		formations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lobbybot_formation_attempts_total",
			Help: "Intentos de formación de partida",
		}, []string{"queue", "result"}),
		formationTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lobbybot_formation_seconds",
			Help:    "Duración de cada intento de formación",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"queue"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lobbybot_lobby_transitions_total",
			Help: "Transiciones de estado de lobbies",
		}, []string{"queue", "to"}),
		providerRetry: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lobbybot_provider_retries_total",
			Help: "Reintentos contra el proveedor de canales",
		}, []string{"op"}),
		lobbiesResolve: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lobbybot_lobbies_resolved_total",
			Help: "Lobbies cerrados por resultado",
		}, []string{"queue", "outcome"}),
	}
}

func (r *Recorder) QueueSize(queueID string, entries, players int) {
	r.queueEntries.WithLabelValues(queueID).Set(float64(entries))
	r.queuePlayers.WithLabelValues(queueID).Set(float64(players))
}

func (r *Recorder) Formation(queueID string, formed bool, took time.Duration) {
	result := "none"
	if formed {
		result = "formed"
	}
	r.formations.WithLabelValues(queueID, result).Inc()
	r.formationTime.WithLabelValues(queueID).Observe(took.Seconds())
}

func (r *Recorder) LobbyTransition(queueID, to string) {
	r.transitions.WithLabelValues(queueID, to).Inc()
}

func (r *Recorder) ProviderRetry(op string) { r.providerRetry.WithLabelValues(op).Inc() }

func (r *Recorder) LobbyResolved(queueID, outcome string) {
	r.lobbiesResolve.WithLabelValues(queueID, outcome).Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
