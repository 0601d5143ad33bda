// Package api serves the place HTTP routes.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JLsquare/voxplace/internal/auth"
	"github.com/JLsquare/voxplace/internal/canvas"
	"github.com/JLsquare/voxplace/internal/metrics"
	"github.com/JLsquare/voxplace/internal/persistence/store"
	"github.com/JLsquare/voxplace/internal/place"
	"github.com/JLsquare/voxplace/internal/registry"
)

// Places is the registry surface the handlers need.
type Places interface {
	Get(placeID int64) (*place.Place, error)
	All() []*place.Place
	Create(ctx context.Context, opt registry.CreateOptions) (*place.Place, error)
	SetOnline(ctx context.Context, placeID int64, online bool) error
}

// Users resolves painters and accounts.
type Users interface {
	PlaceUser(ctx context.Context, placeID int64, x, y, z int) (int64, error)
	User(ctx context.Context, userID int64) (store.User, error)
}

type Painter interface {
	Apply(ctx context.Context, p *place.Place, x, y, z int, color uint8, userID int64) (expiry time.Time, err error)
}

// Viewers reports live viewer counts.
type Viewers interface {
	Count(placeID int64) int
}

type Deps struct {
	Places  Places
	Users   Users
	Gate    Painter
	Viewers Viewers
	Auth    *auth.Signer
	Logger  *log.Logger

	// Stream serves GET /api/place/ws/{id}. Metrics serves GET /metrics.
	Stream  http.Handler
	Metrics http.Handler

	MaxCanvasSide int

	// DefaultCooldown applies to created places that name no cooldown.
	DefaultCooldown time.Duration
}

// NewServer creates the HTTP handler with all routes configured.
func NewServer(d Deps) http.Handler {
	if d.MaxCanvasSide <= 0 {
		d.MaxCanvasSide = canvas.MaxSide
	}
	mux := chi.NewRouter()

	mux.Use(RequestID)
	mux.Use(Logging(d.Logger))
	mux.Use(Recovery(d.Logger))
	mux.Use(metrics.Metrics)

	ph := &placeHandler{d: d}
	ah := &adminHandler{d: d}

	mux.Route("/api/place", func(r chi.Router) {
		r.Get("/all/{id}", ph.All)
		r.Get("/palette/{id}", ph.Palette)
		r.Get("/infos", ph.Infos)
		r.Post("/draw", ph.Draw)
		r.Post("/username", ph.Username)

		r.Post("/create", ah.Create)
		r.Post("/online", ah.Online)

		if d.Stream != nil {
			r.Get("/ws/{id}", d.Stream.ServeHTTP)
		}
	})

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics)
	}
	return mux
}
