package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.QueueSize("ranked", 3, 7)
	r.Formation("ranked", true, 2*time.Millisecond)
	r.Formation("ranked", false, time.Millisecond)
	r.Formation("ranked", false, time.Millisecond)
	r.LobbyTransition("ranked", "Voting")
	r.ProviderRetry("create_channels")
	r.LobbyResolved("ranked", "team1")

	assert.Equal(t, 3.0, testutil.ToFloat64(r.queueEntries.WithLabelValues("ranked")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.queuePlayers.WithLabelValues("ranked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.formations.WithLabelValues("ranked", "formed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.formations.WithLabelValues("ranked", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.providerRetry.WithLabelValues("create_channels")))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lobbybot_lobbies_resolved_total{outcome="team1",queue="ranked"} 1`)
}
