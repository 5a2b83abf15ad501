package backupd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shiwa/timecard-mini/spll-backup/internal/logger"
)

// serveHTTP поднимает сервер в фоне и останавливает его по отмене ctx
func serveHTTP(ctx context.Context, addr string, reg *prometheus.Registry, d *Daemon) {
	srv := newHTTPServer(addr, reg, d)
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("backupd: http %s: %v", addr, err)
		}
	}()
}

// newHTTPServer — /metrics (Prometheus) и /api/status (отчёт по петлям, JSON)
func newHTTPServer(addr string, reg *prometheus.Registry, d *Daemon) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, d.Report())
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("spll-backupd\n"))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeStatus(w http.ResponseWriter, loops []LoopReport) {
	if loops == nil {
		loops = []LoopReport{}
	}
	raw, err := json.Marshal(struct {
		Loops []LoopReport `json:"loops"`
	}{loops})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
