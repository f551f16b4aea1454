package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tidalresolver/internal/core"
	"tidalresolver/internal/flood"
	"tidalresolver/pkg/host"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	config *core.ServerConfig
	logger *zap.Logger
	server *http.Server
	gate   *flood.Floodgate
}

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tidalresolver_http_requests_total",
				Help: "Total number of /search requests served",
			},
			[]string{"code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tidalresolver_http_request_duration_seconds",
				Help:    "Time spent serving /search requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"code"},
		),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration)
	return m
}

// NewServer builds the HTTP server. Metrics are registered on reg and served
// from it, so tests can pass a fresh prometheus.NewRegistry(). /readyz asks
// ready on every call; nil means always ready.
func NewServer(
	config *core.ServerConfig,
	searcher host.Searcher,
	ready func() bool,
	reg *prometheus.Registry,
	logger *zap.Logger,
) *Server {
	if ready == nil {
		ready = func() bool { return true }
	}
	gate := flood.New(config.SearchLimitPerMinute)
	mux := setupRoutes(searcher, reg, newMetrics(reg), ready, gate, logger)

	return &Server{
		config: config,
		logger: logger,
		server: createHTTPServer(config, mux),
		gate:   gate,
	}
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func setupRoutes(
	searcher host.Searcher,
	gatherer prometheus.Gatherer,
	metrics *Metrics,
	ready func() bool,
	gate *flood.Floodgate,
	logger *zap.Logger,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok", "service": "tidalresolver"}
		if gate != nil {
			body["search_limiter"] = gate.GetStats()
		}
		writeJSON(w, http.StatusOK, body, logger)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !ready() {
			writeJSON(w, http.StatusServiceUnavailable,
				map[string]string{"status": "starting", "service": "tidalresolver"}, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": "tidalresolver"}, logger)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/search", searchHandler(searcher, metrics, gate, logger))
	mux.HandleFunc("/", homeHandler(logger))

	return mux
}

func searchHandler(searcher host.Searcher, metrics *Metrics, gate *flood.Floodgate, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var code int
		if gate.Allow(clientKey(r)) {
			code = serveSearch(w, r, searcher, logger)
		} else {
			code = http.StatusTooManyRequests
			writeJSON(w, code, map[string]string{"error": "too many searches, slow down"}, logger)
		}
		label := strconv.Itoa(code)
		metrics.RequestsTotal.WithLabelValues(label).Inc()
		metrics.RequestDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}
}

func clientKey(r *http.Request) string {
	addr, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return addr
}

func serveSearch(w http.ResponseWriter, r *http.Request, searcher host.Searcher, logger *zap.Logger) int {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"}, logger)
		return http.StatusMethodNotAllowed
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing query parameter q"}, logger)
		return http.StatusBadRequest
	}

	res, err := searcher.Search(r.Context(), host.SearchQuery{
		Source: r.URL.Query().Get("source"),
		Query:  query,
	}, r.RemoteAddr)
	if err != nil {
		logger.Error("Search failed", zap.String("query", query), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()}, logger)
		return http.StatusBadGateway
	}

	writeJSON(w, http.StatusOK, res, logger)
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debug("Failed to write response", zap.Error(err))
	}
}

func homeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(homePage)); err != nil {
			logger.Debug("Failed to write home page", zap.Error(err))
		}
	}
}

const homePage = `<!DOCTYPE html>
<html>
<head>
    <title>tidalresolver</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
    </style>
</head>
<body>
    <h1>tidalresolver</h1>
    <p>Resolves TIDAL track, album and playlist links into playable queue entries.</p>

    <h2>Endpoints</h2>
    <div class="endpoint"><a href="/search?q=https://tidal.com/browse/track/19784638">/search?q=</a> - Search or resolve a link</div>
    <div class="endpoint"><a href="/metrics">/metrics</a> - Prometheus metrics</div>
    <div class="endpoint"><a href="/healthz">/healthz</a> - Health check</div>
    <div class="endpoint"><a href="/readyz">/readyz</a> - Readiness check</div>
</body>
</html>`

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.Int("search_limit_per_minute", s.config.SearchLimitPerMinute))

	go func() {
		_ = s.gate.Run(ctx)
	}()

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}
