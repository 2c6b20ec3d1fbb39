package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fentz26/planwise/internal/models"
	"github.com/fentz26/planwise/internal/scheduler"
)

// Version is reported by /health.
var Version = "dev"

// Pinger reports database liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// Server is the daemon's operational HTTP listener: health, metrics, and a
// read-mostly view of tasks and schedules.
type Server struct {
	service  *Service
	db       Pinger
	gatherer prometheus.Gatherer
	addr     string
	server   *http.Server
	log      zerolog.Logger
}

// NewServer creates a new HTTP server. gatherer may be nil to omit /metrics.
func NewServer(service *Service, db Pinger, gatherer prometheus.Gatherer, addr string, log zerolog.Logger) *Server {
	return &Server{
		service:  service,
		db:       db,
		gatherer: gatherer,
		addr:     addr,
		log:      log.With().Str("component", "http").Logger(),
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tasks", s.handleTasks)
	mux.HandleFunc("/tasks/", s.handleTaskByID)
	mux.HandleFunc("/owners/", s.handleOwnerSchedule)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info().Str("addr", s.addr).Msg("http listener starting")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{OK: true, DB: "ok", Version: Version, Time: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK
	if err := s.db.Ping(r.Context()); err != nil {
		resp.OK = false
		resp.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleTasks handles GET /tasks?owner=&status=
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	tasks, err := s.service.ListTasks(r.Context(), q.Get("owner"), models.TaskStatus(q.Get("status")))
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleTaskByID handles GET /tasks/{id} and GET /tasks/{id}/dependents
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/tasks/"), "/")
	if parts[0] == "" {
		http.Error(w, "task id required", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	taskID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "":
		task, err := s.service.GetTask(r.Context(), taskID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	case "dependents":
		deps, err := s.service.Dependents(r.Context(), "", taskID)
		if err != nil {
			writeError(w, err)
			return
		}
		if deps == nil {
			deps = []models.Task{}
		}
		writeJSON(w, http.StatusOK, deps)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// handleOwnerSchedule handles POST /owners/{owner}/schedule?tz=
func (s *Server) handleOwnerSchedule(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/owners/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "schedule" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, err := s.service.RunSchedule(r.Context(), parts[0], scheduler.RunOptions{Timezone: r.URL.Query().Get("tz")})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidTask):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotOwner):
		status = http.StatusForbidden
	case scheduler.IsBusy(err):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
