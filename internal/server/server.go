// ABOUTME: HTTP server wiring the gate, flows, and demo routes together
// ABOUTME: Routes declare their required profiles at registration time

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/me/gatehouse/internal/config"
	"github.com/me/gatehouse/internal/secure"
	"github.com/me/gatehouse/internal/session"
)

// sessionCleanupInterval is how often expired sessions are purged.
const sessionCleanupInterval = time.Hour

// Server hosts the login flows and the protected application routes.
type Server struct {
	cfg      *config.Config
	gate     *secure.Gate
	sessions *session.Manager
	store    session.Store
	logger   *slog.Logger
	handler  http.Handler

	templates *templates
	notice    template.HTML
}

// New assembles the server: token codec, gate, flows, and routes.
// verifier and trust may be nil, falling back to the gate defaults.
func New(cfg *config.Config, sessionStore session.Store, verifier secure.CredentialVerifier, trust secure.TrustDelegate) (*Server, error) {
	logger := slog.Default().With("component", "server")

	codec, err := secure.NewTokenCodec([]byte(cfg.Secure.Secret))
	if err != nil {
		return nil, fmt.Errorf("creating token codec: %w", err)
	}

	sessions := session.NewManager(sessionStore, cfg.Secure.SessionCookie, cfg.Secure.SessionTTL)

	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		store:    sessionStore,
		logger:   logger,
	}

	if err := s.loadTemplates(); err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	gate, err := secure.New(secure.Config{
		Codec:          codec,
		Sessions:       sessions,
		Verifier:       verifier,
		Trust:          trust,
		LoginPath:      cfg.Secure.LoginPath,
		RememberCookie: cfg.Secure.RememberCookie,
		RememberFor:    cfg.Secure.RememberFor,
		RenderLogin:    s.renderLogin,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gate: %w", err)
	}
	s.gate = gate

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = loggingMiddleware(logger)(mux)

	return s, nil
}

// Gate returns the assembled access gate, for callers registering their own
// protected routes.
func (s *Server) Gate() *secure.Gate {
	return s.gate
}

// registerRoutes binds the login flows and the demo application routes.
// Each protected route names its required profiles here, in order.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	loginPath := s.cfg.Secure.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}

	mux.HandleFunc("GET "+loginPath, s.gate.LoginPage)
	mux.HandleFunc("POST "+loginPath, s.gate.Authenticate)
	mux.HandleFunc("GET /logout", s.gate.Logout)
	mux.HandleFunc("POST /logout", s.gate.Logout)

	mux.Handle("GET /{$}", s.gate.ProtectFunc(s.handleHome))
	mux.Handle("GET /admin", s.gate.ProtectFunc(s.handleAdmin, "admin"))
	mux.Handle("GET /api/me", s.gate.ProtectFunc(s.handleMe))
}

// handleHome renders the landing page for any authenticated user.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	sess := secure.FromContext(r.Context())
	s.renderHome(w, sess.Username(), false)
}

// handleAdmin renders the admin page; the gate has already enforced the
// "admin" profile.
func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	sess := secure.FromContext(r.Context())
	s.renderHome(w, sess.Username(), true)
}

// handleMe is a programmatic endpoint returning the caller's identity.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := secure.FromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"username": sess.Username()})
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.HTTPAddr,
		Handler: s.handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go s.cleanupSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// cleanupSessions periodically deletes expired sessions from the store.
func (s *Server) cleanupSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.DeleteExpired(ctx, time.Now())
			if err != nil {
				s.logger.Warn("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("deleted expired sessions", "count", n)
			}
		}
	}
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}
