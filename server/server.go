package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-http-utils/etag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MinRefreshInterval is the lowest accepted reload interval.
const MinRefreshInterval = 5 * time.Second

// Server serves a flag file over the /v1/flags protocol.
type Server struct {
	Path            string
	RefreshInterval time.Duration
	AuthKey         string

	mu         sync.RWMutex
	projectID  string
	listings   map[string]listing
	loaded     bool
	loadedAt   time.Time
	loadErr    error
	httpServer *http.Server
	cancel     context.CancelFunc
}

// NewServer loads the flag file at path and starts reloading it whenever it
// changes on disk, and every refreshInterval, until ctx is cancelled or Stop
// is called. A failed initial load leaves the server unhealthy; it keeps
// retrying on every tick.
func NewServer(ctx context.Context, path string, refreshInterval time.Duration) *Server {
	if refreshInterval < MinRefreshInterval {
		logrus.Warnf("refresh interval too low, setting it to %s", MinRefreshInterval)
		refreshInterval = MinRefreshInterval
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	} else {
		logrus.WithError(err).Error("error getting absolute path")
	}
	ctx, cancel := context.WithCancel(ctx)
	server := &Server{
		Path:            path,
		RefreshInterval: refreshInterval,
		cancel:          cancel,
	}
	if err := server.Reload(); err != nil {
		logrus.WithError(err).Error("error loading flag file")
	}
	go server.refresh(ctx)
	return server
}

func (s *Server) refresh(ctx context.Context) {
	ticker := time.NewTicker(s.RefreshInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := s.watch()
	if err != nil {
		logrus.WithError(err).Warn("error watching flag file, relying on periodic reload")
	} else {
		defer watcher.Close()
		events, errs = watcher.Events, watcher.Errors
	}

	for {
		select {
		case <-ticker.C:
			if err := s.Reload(); err != nil {
				logrus.WithError(err).Error("error reloading flag file")
			}
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.Path) ||
				event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				logrus.WithError(err).Error("error reloading flag file")
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logrus.WithError(err).Debug("flag file watcher error")
		case <-ctx.Done():
			return
		}
	}
}

// watch watches the directory of the flag file, so editors that replace the
// file by renaming are noticed too.
func (s *Server) watch() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.Path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", s.Path, err)
	}
	return watcher, nil
}

// Reload reads the flag file again. On error the previous listings keep
// being served and the server reports unhealthy until a reload succeeds.
func (s *Server) Reload() error {
	data, err := os.ReadFile(s.Path)
	if err == nil {
		var projectID string
		var listings map[string]listing
		projectID, listings, err = parseDocument(data)
		if err == nil {
			s.mu.Lock()
			s.projectID = projectID
			s.listings = listings
			s.loaded = true
			s.loadedAt = time.Now()
			s.loadErr = nil
			s.mu.Unlock()
			logrus.WithField("environments", len(listings)).Debug("flag file loaded")
			return nil
		}
	}
	s.mu.Lock()
	s.loadErr = err
	s.mu.Unlock()
	return err
}

// Stop stops the reload goroutine.
func (s *Server) Stop() {
	s.cancel()
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	logrus.WithField("addr", addr).Info("Starting server")

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.CreateHandlers(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the reload goroutine and gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	s.Stop()
	s.mu.RLock()
	httpServer := s.httpServer
	s.mu.RUnlock()
	if httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

// CreateHandlers builds the router. Only /v1/flags requires the API key.
func (s *Server) CreateHandlers() http.Handler {
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	r.Get("/health", s.health)
	r.Head("/health", s.health)
	r.Get("/ready", s.ready)
	r.Head("/ready", s.ready)
	r.Get("/status", s.status)
	r.Head("/status", s.status)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.AuthKey != "" {
			r.Use(func(next http.Handler) http.Handler {
				return Auth(next, s.AuthKey)
			})
		}
		flags := etag.Handler(http.HandlerFunc(s.listFlags), false)
		r.Method(http.MethodGet, "/v1/flags", flags)
		r.Method(http.MethodHead, "/v1/flags", flags)
	})
	return r
}

func (s *Server) listFlags(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	env := query.Get("env")
	if env == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "env is required"})
		return
	}

	s.mu.RLock()
	projectID, loaded := s.projectID, s.loaded
	l, ok := s.listings[env]
	s.mu.RUnlock()

	if !loaded {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "flags not loaded"})
		return
	}
	if projectID != "" {
		requested := query.Get("project_id")
		if requested == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "project_id is required"})
			return
		}
		if requested != projectID {
			ok = false
		}
	}

	body := []byte(`{"flags":[]}`)
	if ok {
		body = l.body
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		logrus.WithError(err).Error("error writing response")
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.loadError(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if !s.IsReady() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// EnvironmentStatus is the per-environment entry of /status.
type EnvironmentStatus struct {
	Name  string `json:"name"`
	Flags int    `json:"flags"`
}

// Status is the body of /status.
type Status struct {
	Healthy      bool                `json:"healthy"`
	Ready        bool                `json:"ready"`
	LoadedAt     *time.Time          `json:"loaded_at,omitempty"`
	LastError    string              `json:"last_error,omitempty"`
	Environments []EnvironmentStatus `json:"environments"`
}

// GetStatus reports the load state and the flag count of every environment.
func (s *Server) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := Status{
		Healthy:      s.loadErr == nil,
		Ready:        s.loaded,
		Environments: make([]EnvironmentStatus, 0, len(s.listings)),
	}
	if s.loaded {
		loadedAt := s.loadedAt
		status.LoadedAt = &loadedAt
	}
	if s.loadErr != nil {
		status.LastError = s.loadErr.Error()
	}
	for env, l := range s.listings {
		status.Environments = append(status.Environments, EnvironmentStatus{Name: env, Flags: l.count})
	}
	sort.Slice(status.Environments, func(i, j int) bool {
		return status.Environments[i].Name < status.Environments[j].Name
	})
	return status
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	status := s.GetStatus()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// IsHealthy reports whether the last load succeeded.
func (s *Server) IsHealthy() bool {
	return s.loadError() == nil
}

// IsReady reports whether a flag file has been loaded at least once.
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Server) loadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("error writing response")
	}
}
