package httpserver

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// HealthFunc reports component status; "ok" means healthy.
type HealthFunc func(ctx context.Context) map[string]string

// Healthz answers "ok", or 503 with the failing components when a backing store is down.
func Healthz(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if health == nil {
			_, _ = w.Write([]byte("ok"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if bad := Failing(health(ctx)); len(bad) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ok\n" + strings.Join(bad, "\n")))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}
}

// Failing lists backing stores that are configured but down, as "name: detail".
func Failing(h map[string]string) []string {
	var bad []string
	for _, k := range []string{"db", "redis"} {
		if v, ok := h[k]; ok && v != "ok" {
			bad = append(bad, k+": "+v)
		}
	}
	return bad
}

var (
	registerOnce sync.Once
	current      atomic.Pointer[HealthFunc]
)

// New returns a server for the bot's DefaultServeMux. Routes are registered on
// the first call; later calls only replace the health source.
func New(addr string, health HealthFunc) *http.Server {
	current.Store(&health)
	registerOnce.Do(func() {
		http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			Healthz(*current.Load())(w, r)
		})
		http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte("eye report bot"))
		})
	})
	return &http.Server{Addr: addr, ReadHeaderTimeout: 10 * time.Second}
}
