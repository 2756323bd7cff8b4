package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ilingu/ilix-server/pkg/broadcast"
	"github.com/ilingu/ilix-server/pkg/keyphrase"
	"github.com/ilingu/ilix-server/pkg/log"
	"github.com/ilingu/ilix-server/pkg/metrics"
	"github.com/ilingu/ilix-server/pkg/storage"
)

// Server is the HTTP surface: request parsing, key-phrase extraction,
// orchestration of store and broadcaster, response shaping.
type Server struct {
	store       storage.Store
	broadcaster *broadcast.Broadcaster
	hasher      keyphrase.Hasher
	tmpDir      string

	router *mux.Router
	httpSrv *http.Server
	logger zerolog.Logger
}

// Config carries the server dependencies.
type Config struct {
	Store       storage.Store
	Broadcaster *broadcast.Broadcaster
	Hasher      keyphrase.Hasher
	TmpDir      string
	Version     string
}

// NewServer wires the routes and middleware.
func NewServer(cfg Config) *Server {
	s := &Server{
		store:       cfg.Store,
		broadcaster: cfg.Broadcaster,
		hasher:      cfg.Hasher,
		tmpDir:      cfg.TmpDir,
		logger:      log.WithComponent("server"),
	}

	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)

	pool := r.PathPrefix("/pool").Subrouter()
	pool.HandleFunc("/new", s.handleNewPool).Methods(http.MethodPost)
	pool.HandleFunc("/join", s.handleJoinPool).Methods(http.MethodPut)
	pool.HandleFunc("/leave", s.handleLeavePool).Methods(http.MethodDelete)
	pool.HandleFunc("/{key_phrase}", s.handleDeletePool).Methods(http.MethodDelete)
	pool.HandleFunc("", s.handleGetPool).Methods(http.MethodGet)

	ft := r.PathPrefix("/file-transfer").Subrouter()
	ft.HandleFunc("/{device_id}/all", s.handleGetAllTransfers).Methods(http.MethodGet)
	ft.HandleFunc("/{transfer_id}/add_files", s.handleAddFilesToTransfer).Methods(http.MethodPost)
	ft.HandleFunc("/{device_id}/{transfer_id}", s.handleDeleteTransfer).Methods(http.MethodDelete)
	ft.HandleFunc("", s.handleCreateTransfer).Methods(http.MethodPost)

	file := r.PathPrefix("/file").Subrouter()
	file.HandleFunc("/{file_id}", s.handleGetFile).Methods(http.MethodGet)
	file.HandleFunc("/{file_id}", s.handleDeleteFile).Methods(http.MethodDelete)

	r.HandleFunc("/files/info", s.handleGetFilesInfo).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	r.HandleFunc("/health", healthHandler(cfg.Version)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	s.router = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving on addr and blocks until the listener fails or the
// server is stopped.
func (s *Server) Start(addr string) error {
	// No global write timeout: /events connections are long-lived.
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("http server listening")
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// publish delivers an event to the given devices without blocking the
// response. The mutation has already committed, so a failed delivery is
// logged and dropped.
func (s *Server) publish(deviceIDs []string, kp keyphrase.KeyPhrase, ev broadcast.Event) {
	hashed, err := s.hasher.Hash(kp)
	if err != nil {
		s.logger.Warn().Err(err).Msg("skipping event publication")
		return
	}
	go func() {
		if err := s.broadcaster.Broadcast(deviceIDs, hashed, ev); err != nil {
			s.logger.Warn().Err(err).Str("event", string(ev.Name)).Msg("event publication failed")
		}
	}()
}

// statusRecorder captures the response status for logging and metrics while
// passing Flush through for event streams.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
