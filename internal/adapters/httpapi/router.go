// Package httpapi は死活監視とメトリクスの HTTP エンドポイントを提供します。
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// AliveMessage はホスティング環境のキープアライブ監視に返す本文です。
const AliveMessage = "Bot is alive!"

const readinessTimeout = 2 * time.Second

// ReadinessCheck は依存先の疎通を確認します。
type ReadinessCheck func(ctx context.Context) error

// Handler は HTTP エンドポイントをまとめます。
type Handler struct {
	gatherer prometheus.Gatherer
	checks   map[string]ReadinessCheck
	logger   zerolog.Logger
}

// New は Handler を生成します。
func New(gatherer prometheus.Gatherer, checks map[string]ReadinessCheck, logger zerolog.Logger) *Handler {
	return &Handler{gatherer: gatherer, checks: checks, logger: logger}
}

// Router はルーティング済みの http.Handler を返します。
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	h.Register(r)
	return r
}

// Register はエンドポイントをルーターへ登録します。
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.HandleAlive)
	r.Head("/", h.HandleAlive)
	r.Get("/healthz", h.HandleReady)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

// HandleAlive は常に 200 を返します。
func (h *Handler) HandleAlive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(AliveMessage))
}

// HandleReady は登録された依存先をすべて確認し、いずれかが失敗していれば 503 を返します。
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn().Err(err).Str("dependency", name).Msg("readiness check failed")
			http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
