// Package api serves read and switch access to the account store over a
// Unix socket, so other local tools can follow the active agent without
// touching the storage tiers. Secrets are never returned.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/benaskins/molt/internal/accounts"
	"github.com/benaskins/molt/internal/events"
	"github.com/benaskins/molt/internal/health"
)

// Server serves the molt account API.
type Server struct {
	store    *accounts.Store
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
	events   *events.Ring
	remote   RemoteReporter
}

// RemoteReporter reports Moltbook API reachability.
type RemoteReporter interface {
	Report() health.Report
}

// Option configures a Server.
type Option func(*Server)

// WithRemote includes remote reachability in /v1/health.
func WithRemote(r RemoteReporter) Option {
	return func(s *Server) { s.remote = r }
}

// WithEventHistory sets how many change events /v1/events keeps.
func WithEventHistory(n int) Option {
	return func(s *Server) { s.events = events.New(n) }
}

// NewServer creates an API server backed by the given store.
func NewServer(store *accounts.Store, opts ...Option) *Server {
	s := &Server{
		store:  store,
		logger: slog.With("component", "api"),
		events: events.New(256),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/accounts", s.listAccounts)
	mux.HandleFunc("DELETE /v1/accounts/{id}", s.removeAccount)
	mux.HandleFunc("GET /v1/active", s.getActive)
	mux.HandleFunc("POST /v1/active/{id}", s.setActive)
	mux.HandleFunc("GET /v1/mode", s.getMode)
	mux.HandleFunc("GET /v1/events", s.listEvents)
	mux.HandleFunc("GET /v1/health", s.health)

	s.server = &http.Server{Handler: mux}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenUnix starts the server on a Unix socket.
func (s *Server) ListenUnix(path string) error {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("API listening", "socket", path)
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// NotifyChanged records that another process changed the durable tier.
// The next request re-reads the store anyway; the event lets clients of
// /v1/events find out without polling every endpoint.
func (s *Server) NotifyChanged(file string) {
	e := s.record(events.KindExternalChange, file)
	s.logger.Info("accounts changed externally",
		"file", file,
		"accounts", e.Accounts,
		"active", e.ActiveID,
		"seq", e.Seq)
}

// NotifyRemote records a change in Moltbook API reachability.
func (s *Server) NotifyRemote(status health.Status) {
	s.record(events.KindRemoteStatus, string(status))
}

func (s *Server) record(kind, detail string) events.Event {
	st := s.store.Snapshot()
	return s.events.Add(events.Event{
		Kind:     kind,
		Detail:   detail,
		Accounts: len(st.Accounts),
		ActiveID: st.ActiveID,
	})
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot().Accounts)
}

func (s *Server) removeAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveAccount(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	s.record(events.KindAPIChange, "remove "+r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) getActive(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.store.ActiveAccount()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active account"})
		return
	}
	_, connected := s.store.EffectiveCredential()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         acct.ID,
		"label":      acct.Label,
		"created_at": acct.CreatedAt,
		"connected":  connected,
	})
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Activate(id); err != nil {
		writeError(w, err)
		return
	}
	s.record(events.KindAPIChange, "activate "+id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (s *Server) getMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(s.store.PersistenceMode())})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be a non-negative integer"})
			return
		}
		since = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"seq":    s.events.Seq(),
		"events": s.events.Since(since),
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status": "ok",
		"inert":  s.store.Inert(),
		"seq":    s.events.Seq(),
	}
	if s.remote != nil {
		body["remote"] = s.remote.Report()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, accounts.ErrNoEnvironment):
		status = http.StatusServiceUnavailable
	case errors.Is(err, accounts.ErrUnknownAccount):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
