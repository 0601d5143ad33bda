package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JLsquare/voxplace/internal/broadcast"
	"github.com/JLsquare/voxplace/internal/persistence/writebehind"
)

func TestCollector_ExportsSources(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(Sources{
		Hub:         func() broadcast.Stats { return broadcast.Stats{Subscribers: 3, Delivered: 10} },
		WriteBehind: func() writebehind.Stats { return writebehind.Stats{FlushedEvents: 7, FailedSnapshots: 1} },
		Places:      func() int { return 2 },
	}))

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"voxplace_places_online 2",
		"voxplace_viewers 3",
		"voxplace_frames_sent_total 10",
		"voxplace_paint_events_flushed_total 7",
		"voxplace_grid_snapshot_failures_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
	if strings.Contains(body, "voxplace_mirror_queue_depth") {
		t.Fatalf("nil mirror source exported")
	}
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/things/1", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status=%d", rec.Code)
	}
}
