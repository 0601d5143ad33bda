package api

import (
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/JLsquare/voxplace/internal/metrics"
	"github.com/JLsquare/voxplace/internal/protocol"
)

// RequestID echoes the caller's X-Request-ID or assigns a fresh one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// Logging logs each request with method, path, status, and duration.
func Logging(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &metrics.StatusWriter{ResponseWriter: w, Status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Printf("http method=%s path=%s status=%d dur=%s id=%s",
				r.Method, r.URL.Path, sw.Status, time.Since(start).Round(time.Microsecond), w.Header().Get("X-Request-ID"))
		})
	}
}

// Recovery turns a handler panic into a 500.
func Recovery(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					if logger != nil {
						logger.Printf("panic path=%s err=%v\n%s", r.URL.Path, err, debug.Stack())
					}
					writeText(w, http.StatusInternalServerError, protocol.ErrInternal, msgInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
