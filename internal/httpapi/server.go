// Package httpapi exposes the platform over HTTP: the chat endpoint, health
// probes, and the account endpoints backed by Postgres.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/edustack-labs/edustack/internal/auth"
	"github.com/edustack-labs/edustack/internal/chat"
	"github.com/edustack-labs/edustack/internal/chat/archive"
	"github.com/edustack-labs/edustack/internal/monitor"
	"github.com/edustack-labs/edustack/internal/platform"
)

type Options struct {
	Logger *slog.Logger
	Port   int

	// Chat serves POST /chat. Required.
	Chat *chat.Service

	// ProviderName and ProviderModel describe the upstream model for the
	// detailed health response.
	ProviderName  string
	ProviderModel string

	// Tokens, Users and Institutions back the /api/auth endpoints. When any
	// of them is nil the account endpoints are not mounted.
	Tokens       *auth.Manager
	Users        *platform.Users
	Institutions *platform.Institutions

	// DBPing reports database liveness for /health/details. Optional.
	DBPing func(ctx context.Context) error

	// Archive backs the transcript listing endpoints. Optional.
	Archive *archive.Store

	// Monitor contributes host metrics to /health/details. Optional.
	Monitor *monitor.Service

	Version string
}

type Server struct {
	log  *slog.Logger
	port int

	chat          *chat.Service
	providerName  string
	providerModel string

	tokens       *auth.Manager
	users        *platform.Users
	institutions *platform.Institutions

	dbPing  func(ctx context.Context) error
	arch    *archive.Store
	monitor *monitor.Service
	version string

	ln  net.Listener
	srv *http.Server
}

func New(opts Options) (*Server, error) {
	if opts.Chat == nil {
		return nil, errors.New("missing Chat")
	}
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid Port: %d", port)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return &Server{
		log:           logger,
		port:          port,
		chat:          opts.Chat,
		providerName:  strings.TrimSpace(opts.ProviderName),
		providerModel: strings.TrimSpace(opts.ProviderModel),
		tokens:        opts.Tokens,
		users:         opts.Users,
		institutions:  opts.Institutions,
		dbPing:        opts.DBPing,
		arch:          opts.Archive,
		monitor:       opts.Monitor,
		version:       strings.TrimSpace(opts.Version),
	}, nil
}

// Handler builds the route table. Exposed separately so tests can drive the
// mux through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/details", s.handleHealthDetails)

	if s.arch != nil {
		mux.HandleFunc("/sessions", s.handleSessions)
		mux.HandleFunc("/sessions/", s.handleSessionMessages)
	}

	if s.tokens != nil && s.users != nil && s.institutions != nil {
		mux.HandleFunc("/api/auth/login", s.handleLogin)
		mux.HandleFunc("/api/auth/signup", s.handleSignup)
		mux.HandleFunc("/api/auth/profile", s.withAuth(s.handleProfile))
		mux.HandleFunc("/api/auth/users", s.withAuth(s.handleListUsers, "admin", "super_admin"))
		mux.HandleFunc("/api/auth/users/role", s.withAuth(s.handleUpdateRole, "super_admin"))
	}

	return withCORS(mux)
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if s.srv != nil {
		return nil
	}

	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.ln = ln

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", "error", err)
		}
	}()

	s.log.Info("http api listening", "port", s.port)
	return nil
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctx)
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.srv = nil
	s.ln = nil
	return nil
}

func (s *Server) Port() int {
	if s == nil {
		return 0
	}
	return s.port
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResp struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Error: msg})
}

// withCORS answers preflight requests and stamps the permissive headers the
// browser clients expect. Token auth does the actual gatekeeping.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
