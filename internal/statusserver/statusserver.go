// Package statusserver exposes a read-only HTTP introspection endpoint over
// the supervisor's live map/task state (SPEC_FULL.md expansion: the
// original design has no remote visibility into a running supervisor
// beyond its log file, so there's no way to ask "what is it doing right
// now" without signal-stopping it or tailing logs by hand).
package statusserver

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tsdfx/tsdfx/internal/task"
)

// MapStatus is one map entry's point-in-time status, as reported by the
// status endpoint.
type MapStatus struct {
	Name        string `json:"name"`
	Src         string `json:"src"`
	Dst         string `json:"dst"`
	ScanState   string `json:"scan_state"`
	RecentCount int    `json:"recent_error_count"`
}

// Snapshot is a function the server calls on every request to collect a
// fresh view of supervisor state; the server itself holds no state beyond
// the HTTP listener, since the supervisor's main loop is the sole owner
// of tasks/maps and must never be mutated from a handler goroutine.
type Snapshot func() []MapStatus

// Server wraps a gorilla/mux router serving GET-only status endpoints.
type Server struct {
	router   *mux.Router
	snapshot Snapshot
	started  time.Time
}

// New builds a Server. snapshot is called fresh on every request.
func New(snapshot Snapshot) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		snapshot: snapshot,
		started:  time.Now(),
	}
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type statusResponse struct {
	UptimeSeconds float64     `json:"uptime_seconds"`
	Maps          []MapStatus `json:"maps"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		UptimeSeconds: time.Since(s.started).Seconds(),
		Maps:          s.snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Serve listens on addr (TCP) and returns the listener at once, serving
// requests in a background goroutine until the listener errors or is
// closed (e.g. via the returned net.Listener's Close from a signal
// handler). addr empty string means "any free port", useful for tests.
func Serve(addr string, s *Server) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go http.Serve(ln, s)
	return ln, nil
}

// ScanStateString maps a task's state to the short word the status
// endpoint reports, so callers assembling a MapStatus don't need to
// import internal/task directly.
func ScanStateString(t *task.Task) string {
	if t == nil {
		return "none"
	}
	return t.State().String()
}
