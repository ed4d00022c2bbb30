// Package httpapi expone las estadísticas del dashboard como JSON, el feed en vivo
// por websocket y las métricas Prometheus.
package httpapi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// Analytics es la vista de sólo lectura que sirve la API.
type Analytics interface {
	Summary(ctx context.Context) (domain.Summary, error)
	AccuracyOverTime(ctx context.Context) (iter.Seq2[time.Time, float64], error)
	AccuracyByCoin(ctx context.Context) (map[string]float64, error)
	Ranking(ctx context.Context, dimension string) ([]domain.RankEntry, error)
	Heatmap(ctx context.Context) (domain.Heatmap, error)
	Leaderboard(ctx context.Context) ([]domain.LeaderboardRow, error)
	RollingWinRate(ctx context.Context) ([]domain.SeriesPoint, error)
	CumulativeProfit(ctx context.Context) ([]domain.SeriesPoint, error)
	Recent(ctx context.Context, n int) ([]domain.VerifiedSignal, error)
	HighConfidence(ctx context.Context, threshold float64) ([]domain.VerifiedSignal, error)
}

// Config controla la dirección y los timeouts del servidor.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxRecent       int
}

// DefaultConfig devuelve una configuración sólo-local.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxRecent:       500,
	}
}

type ctxKey int

const requestIDKey ctxKey = iota

// Server es la API HTTP de sólo lectura.
type Server struct {
	cfg       Config
	analytics Analytics
	hub       *Hub
	metrics   *Metrics
	router    *mux.Router
	srv       *http.Server
	started   time.Time
}

// New crea el servidor y registra las rutas. hub y metrics pueden ser nil.
func New(cfg Config, analytics Analytics, hub *Hub, metrics *Metrics) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.MaxRecent <= 0 {
		cfg.MaxRecent = def.MaxRecent
	}

	s := &Server{
		cfg:       cfg,
		analytics: analytics,
		hub:       hub,
		metrics:   metrics,
		router:    mux.NewRouter(),
		started:   time.Now(),
	}
	s.routes()
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonContentType)
	api.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/accuracy/time", s.handleAccuracyOverTime).Methods(http.MethodGet)
	api.HandleFunc("/accuracy/coin", s.handleAccuracyByCoin).Methods(http.MethodGet)
	api.HandleFunc("/ranking/{dimension}", s.handleRanking).Methods(http.MethodGet)
	api.HandleFunc("/heatmap", s.handleHeatmap).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	api.HandleFunc("/series/rolling", s.handleRolling).Methods(http.MethodGet)
	api.HandleFunc("/series/profit", s.handleProfit).Methods(http.MethodGet)
	api.HandleFunc("/signals/recent", s.handleRecent).Methods(http.MethodGet)
	api.HandleFunc("/signals/high-confidence", s.handleHighConfidence).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.ServeWS)
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})
}

// Handler devuelve el router (tests con httptest).
func (s *Server) Handler() http.Handler { return s.router }

// Run sirve hasta que ctx se cancele y luego hace un shutdown ordenado.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http api listening", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("httpapi.Run: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi.Run: shutdown: %w", err)
	}
	slog.Info("http api stopped")
	return nil
}

// --- middleware ---

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()[:8]
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if m := mux.CurrentRoute(r); m != nil {
			if tpl, err := m.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rw.statusCode)).Inc()
		}
		slog.Debug("http request",
			"request_id", requestID(r),
			"method", r.Method,
			"route", route,
			"status", rw.statusCode,
			"duration", time.Since(start),
		)
	})
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

// responseWrapper captura el status y deja pasar el hijack del websocket.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rw *responseWrapper) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
