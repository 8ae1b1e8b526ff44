package web

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"misl/internal/store"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"
)

const (
	AppName = "misl"
	Version = "0.1.1"

	headerRequestID = "X-Request-Id"
	maxBodyBytes    = 1 << 20
)

type ServerConfig struct {
	Addr    string
	DataDir string

	Logger *slog.Logger
	// Now stamps changed timestamps. Defaults to time.Now.
	Now func() time.Time
	// LockTimeout bounds the wait for a list's write lock.
	LockTimeout time.Duration
}

type Server struct {
	cfg   ServerConfig
	store store.Store
	log   *slog.Logger
}

func NewServer(cfg ServerConfig) (*Server, error) {
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		return nil, errors.New("web: missing data dir")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{
		cfg:   cfg,
		store: store.Store{Dir: cfg.DataDir, Now: cfg.Now, LockTimeout: cfg.LockTimeout},
		log:   cfg.Logger,
	}, nil
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.tagRequest, s.logRequests)
	r.NotFoundHandler = s.tagRequest(http.HandlerFunc(s.handleInvalidAPI))
	r.MethodNotAllowedHandler = s.tagRequest(http.HandlerFunc(s.handleInvalidAPI))

	r.Methods(http.MethodGet).Path("/").HandlerFunc(s.handleInfo)
	r.Methods(http.MethodGet).Path("/health").HandlerFunc(s.handleHealth)

	r.Methods(http.MethodPut).Path("/list").HandlerFunc(s.handleCreateList)
	r.Methods(http.MethodGet).Path("/list").Handler(s.withList(s.handleGetList))
	r.Methods(http.MethodDelete).Path("/list").Handler(s.withList(s.handleDeleteList))

	// Collection routes must be registered before the {listType} routes.
	r.Methods(http.MethodPut).Path("/list/categories").Handler(s.withList(s.handleReplaceCategories))
	r.Methods(http.MethodPut).Path("/list/units").Handler(s.withList(s.handleReplaceUnits))

	r.Methods(http.MethodPut).Path("/list/{listType}").Handler(s.withList(s.handleAddEntry))
	r.Methods(http.MethodPost).Path("/list/{listType}/{index}").Handler(s.withList(s.handleToggleEntry))
	r.Methods(http.MethodDelete).Path("/list/{listType}/{index}").Handler(s.withList(s.handleDeleteEntry))
	r.Methods(http.MethodPut).Path("/list/{listType}/{index}").Handler(s.withList(s.handleEditEntry))

	return r
}

func (s *Server) tagRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get(headerRequestID) == "" {
			w.Header().Set(headerRequestID, ulid.Make().String())
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.Info("handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"duration", m.Duration,
			"request_id", w.Header().Get(headerRequestID),
		)
	})
}
