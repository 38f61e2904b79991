package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/aristath/clerk/internal/audit"
	"github.com/aristath/clerk/internal/queue"
)

// Server exposes the pipeline's state over HTTP: queue depths, recent audit
// activity, and the approval actions a reviewer needs. It reads the same
// directories the loop does, so it never needs a running loop to answer.
type Server struct {
	dirs       queue.Dirs
	audit      *audit.Store
	log        *slog.Logger
	httpServer *http.Server
}

// NewServer creates a status API server. auditStore may be nil when
// auditing is disabled; audit endpoints then return empty results.
func NewServer(dirs queue.Dirs, auditStore *audit.Store, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		dirs:  dirs,
		audit: auditStore,
		log:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/queue/", s.handleQueue)
	mux.HandleFunc("/api/audit/recent", s.handleAuditRecent)
	mux.HandleFunc("/api/approve", s.handleApprove)
	mux.HandleFunc("/api/reject", s.handleReject)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Start starts the HTTP server and blocks until Stop.
func (s *Server) Start() error {
	s.log.Info("status API listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop() error {
	return s.httpServer.Close()
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Snapshot is one point-in-time view of the pipeline.
type Snapshot struct {
	Base      string         `json:"base"`
	Queues    map[string]int `json:"queues"`
	Timestamp string         `json:"timestamp"`
}

// queuesByName maps the URL-visible queue names to directories.
func (s *Server) queuesByName() map[string]string {
	return map[string]string{
		"inbox":                s.dirs.Inbox,
		"new-work":             s.dirs.NewWork,
		"pending-approval":     s.dirs.PendingApproval,
		"approved":             s.dirs.Approved,
		"done":                 s.dirs.Done,
		"error-reports":        s.dirs.ErrorReports,
		"manual-action-drafts": s.dirs.ManualActions,
	}
}

// TakeSnapshot counts files per queue.
func (s *Server) TakeSnapshot() (Snapshot, error) {
	snap := Snapshot{
		Base:      s.dirs.Base,
		Queues:    map[string]int{},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	for name, dir := range s.queuesByName() {
		files, err := queue.Scan(dir)
		if err != nil {
			return snap, err
		}
		snap.Queues[name] = len(files)
	}
	return snap, nil
}

type approvalRequest struct {
	Stem string `json:"stem"`
}

type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := s.TakeSnapshot()
	if err != nil {
		s.jsonError(w, fmt.Sprintf("Failed to scan queues: %v", err), http.StatusInternalServerError)
		return
	}
	s.jsonSuccess(w, snap)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := filepath.Base(r.URL.Path)
	dir, ok := s.queuesByName()[name]
	if !ok {
		s.jsonError(w, fmt.Sprintf("Unknown queue %q", name), http.StatusNotFound)
		return
	}
	files, err := queue.Scan(dir)
	if err != nil {
		s.jsonError(w, fmt.Sprintf("Failed to scan queue: %v", err), http.StatusInternalServerError)
		return
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	s.jsonSuccess(w, names)
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.audit == nil {
		s.jsonSuccess(w, []audit.Entry{})
		return
	}

	now := time.Now()
	entries, err := s.audit.Query(now.AddDate(0, 0, -1), now)
	if err != nil {
		s.jsonError(w, fmt.Sprintf("Failed to query audit log: %v", err), http.StatusInternalServerError)
		return
	}
	const limit = 50
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	s.jsonSuccess(w, entries)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleApproval(w, r, queue.Approve, "approved")
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleApproval(w, r, queue.Reject, "rejected")
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request, act func(queue.Dirs, string) (string, error), verb string) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	dst, err := act(s.dirs, req.Stem)
	if errors.Is(err, queue.ErrNotFound) {
		s.jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.jsonError(w, fmt.Sprintf("Failed to move draft: %v", err), http.StatusInternalServerError)
		return
	}

	if s.audit != nil {
		if err := s.audit.LogApproval("hitl_approval", dst, verb, "Via status API"); err != nil {
			s.log.Warn("audit write failed", "err", err)
		}
	}
	s.jsonSuccess(w, fmt.Sprintf("%s %s", verb, filepath.Base(dst)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonSuccess(w, "OK")
}

func (s *Server) jsonSuccess(w http.ResponseWriter, data any) {
	s.jsonResponse(w, apiResponse{Success: true, Data: data})
}

func (s *Server) jsonError(w http.ResponseWriter, msg string, statusCode int) {
	w.WriteHeader(statusCode)
	s.jsonResponse(w, apiResponse{Success: false, Error: msg})
}

func (s *Server) jsonResponse(w http.ResponseWriter, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
