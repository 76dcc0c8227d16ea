// ABOUTME: Access gate middleware executed once per request for protected routes
// ABOUTME: Orders session lookup, remember-me recovery, trust delegation, profile checks

package secure

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/me/gatehouse/internal/session"
)

const (
	// DefaultRememberCookie is the name of the remember-me cookie.
	DefaultRememberCookie = "rememberme"

	// DefaultRememberFor is the default remember-me lifetime.
	DefaultRememberFor = 30 * 24 * time.Hour

	// pendingCookie carries the originally requested URL across the login
	// round trip. Set once, consumed at the post-login redirect.
	pendingCookie = "gatehouse_return"

	// flashCookie carries a one-shot message key across a single redirect.
	flashCookie = "gatehouse_flash"
)

// User-facing indicator keys attached to the login round trip.
const (
	FlashError  = "secure.error"
	FlashLogout = "secure.logout"
)

// Config assembles a Gate. Codec and Sessions are required; nil Verifier
// and Trust fall back to the permissive/inert defaults.
type Config struct {
	Codec    *TokenCodec
	Sessions *session.Manager
	Verifier CredentialVerifier
	Trust    TrustDelegate

	// LoginPath is the interactive login entry point. Default "/login".
	LoginPath string

	// RootPath is the redirect fallback when no target is pending. Default "/".
	RootPath string

	// RememberCookie overrides the remember-me cookie name.
	RememberCookie string

	// RememberFor is the remember-me lifetime when requested at login.
	RememberFor time.Duration

	// RenderLogin renders the login form. The default writes a minimal
	// HTML form; real deployments supply their own renderer.
	RenderLogin func(w http.ResponseWriter, r *http.Request, data LoginData)

	// ErrorHandler receives errors raised by extension-point calls with
	// their original cause intact. The default logs and responds 500.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

	Logger *slog.Logger
}

// Gate decides, once per request, whether a protected action may proceed.
// It holds no shared mutable state and is safe for concurrent use; blocking
// extension-point calls are tolerated without any internal locking.
type Gate struct {
	codec    *TokenCodec
	sessions *session.Manager
	verifier CredentialVerifier
	trust    TrustDelegate

	loginPath      string
	rootPath       string
	rememberCookie string
	rememberFor    time.Duration

	renderLogin func(w http.ResponseWriter, r *http.Request, data LoginData)
	fail        func(w http.ResponseWriter, r *http.Request, err error)
	logger      *slog.Logger
}

// New creates a Gate from the given configuration.
func New(cfg Config) (*Gate, error) {
	if cfg.Codec == nil {
		return nil, fmt.Errorf("secure: token codec is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("secure: session manager is required")
	}

	g := &Gate{
		codec:          cfg.Codec,
		sessions:       cfg.Sessions,
		verifier:       cfg.Verifier,
		trust:          cfg.Trust,
		loginPath:      cfg.LoginPath,
		rootPath:       cfg.RootPath,
		rememberCookie: cfg.RememberCookie,
		rememberFor:    cfg.RememberFor,
		renderLogin:    cfg.RenderLogin,
		fail:           cfg.ErrorHandler,
		logger:         cfg.Logger,
	}

	if g.verifier == nil {
		g.verifier = DefaultVerifier{}
	}
	if g.trust == nil {
		g.trust = NoTrust{}
	}
	if g.loginPath == "" {
		g.loginPath = "/login"
	}
	if g.rootPath == "" {
		g.rootPath = "/"
	}
	if g.rememberCookie == "" {
		g.rememberCookie = DefaultRememberCookie
	}
	if g.rememberFor <= 0 {
		g.rememberFor = DefaultRememberFor
	}
	if g.logger == nil {
		g.logger = slog.Default().With("component", "secure")
	}
	if g.renderLogin == nil {
		g.renderLogin = defaultRenderLogin
	}
	if g.fail == nil {
		g.fail = func(w http.ResponseWriter, r *http.Request, err error) {
			g.logger.Error("gate error", "method", r.Method, "path", r.URL.Path, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}

	return g, nil
}

// Protect wraps a handler so that every request passes the gate first.
// The profiles are the ordered list of authorization profiles the route
// requires, bound at registration time.
func (g *Gate) Protect(next http.Handler, profiles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, err := g.sessions.Lookup(ctx, r)
		if err != nil {
			g.fail(w, r, err)
			return
		}

		if sess != nil && g.verifier.IsConnected(sess) {
			proceed, err := g.checkProfiles(w, r, sess, profiles)
			if err != nil {
				g.fail(w, r, err)
				return
			}
			if !proceed {
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))
			return
		}

		handled, err := g.recoverIdentity(w, r)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		if handled {
			return
		}

		if isProgrammatic(r) {
			// No redirect target is recorded for programmatic callers.
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		g.setPendingTarget(w, r)
		http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
	})
}

// ProtectFunc is Protect for a plain handler function.
func (g *Gate) ProtectFunc(next http.HandlerFunc, profiles ...string) http.Handler {
	return g.Protect(next, profiles...)
}

// recoverIdentity runs the non-interactive authentication attempts: remember-me
// cookie recovery, then the trust-delegation handshake. When either succeeds it
// establishes the session, fires OnAuthenticated, redirects, and reports
// handled == true. Extension-point errors surface with their cause unchanged.
func (g *Gate) recoverIdentity(w http.ResponseWriter, r *http.Request) (bool, error) {
	ctx := r.Context()

	if c, err := r.Cookie(g.rememberCookie); err == nil && c.Value != "" {
		if tok, ok := g.codec.Decode(c.Value); ok {
			switch {
			case tok.Expired(time.Now()):
				// An expired token is a logout event; continue unauthenticated.
				if err := g.discardCredentials(w, r); err != nil {
					return false, err
				}
			case g.codec.Verify(tok):
				sess, err := g.sessions.Start(ctx, r)
				if err != nil {
					return false, err
				}
				sess.SetUsername(tok.Username)
				if err := g.sessions.Commit(ctx, w, r, sess); err != nil {
					return false, err
				}
				if err := g.verifier.OnAuthenticated(ctx, sess); err != nil {
					return false, err
				}
				g.redirectAfterAuth(w, r, true)
				return true, nil
			}
			// Signature mismatch: discard silently.
		}
	}

	done, err := g.trust.TrustPhaseDone(r)
	if err != nil {
		return false, err
	}
	if !done {
		return false, nil
	}

	username, err := g.trust.TrustedUser(r)
	if err != nil {
		return false, err
	}
	if username == "" {
		return false, nil
	}

	sess, err := g.sessions.Start(ctx, r)
	if err != nil {
		return false, err
	}
	allowed, err := g.verifier.TrustAuthentication(ctx, sess, username)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, nil
	}

	if err := g.sessions.Commit(ctx, w, r, sess); err != nil {
		return false, err
	}
	if err := g.verifier.OnAuthenticated(ctx, sess); err != nil {
		return false, err
	}
	g.redirectAfterAuth(w, r, true)
	return true, nil
}

// checkProfiles applies the route's required profiles in order. The first
// failing profile invokes OnCheckFailed, whose return value decides whether
// the remaining profiles are still evaluated.
func (g *Gate) checkProfiles(w http.ResponseWriter, r *http.Request, sess *session.Session, profiles []string) (bool, error) {
	for _, profile := range profiles {
		ok, err := g.verifier.Check(r.Context(), sess, profile)
		if err != nil {
			return false, err
		}
		if !ok {
			if g.verifier.OnCheckFailed(w, r, profile) {
				return false, nil
			}
		}
	}
	return true, nil
}

// discardCredentials clears the session and remember-me cookie the way a
// logout does, without redirecting. Used when an expired token is seen.
func (g *Gate) discardCredentials(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	sess, err := g.sessions.Lookup(ctx, r)
	if err != nil {
		return err
	}
	if err := g.verifier.OnDisconnect(ctx, sess); err != nil {
		return err
	}
	if err := g.sessions.Destroy(ctx, w, sess); err != nil {
		return err
	}
	g.clearRememberCookie(w)
	if err := g.verifier.OnDisconnected(ctx); err != nil {
		return err
	}
	return g.trust.OnDisconnected(ctx, r)
}

// redirectAfterAuth sends the freshly authenticated caller back where it was
// going: the pending target if one is set, otherwise the current URL when
// fallbackCurrent is set and the request is a GET, otherwise the root path.
func (g *Gate) redirectAfterAuth(w http.ResponseWriter, r *http.Request, fallbackCurrent bool) {
	target := g.consumePendingTarget(w, r)
	if target == "" {
		if fallbackCurrent && r.Method == http.MethodGet {
			target = r.URL.RequestURI()
		} else {
			target = g.rootPath
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// setPendingTarget records the original request URL before the login round
// trip. An existing pending target is never overwritten.
func (g *Gate) setPendingTarget(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(pendingCookie); err == nil && c.Value != "" {
		return
	}

	target := g.rootPath
	if r.Method == http.MethodGet {
		target = r.URL.RequestURI()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     pendingCookie,
		Value:    url.QueryEscape(target),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// consumePendingTarget returns the pending redirect target and clears it.
// Only local paths are honored, so the cookie cannot become an open redirect.
func (g *Gate) consumePendingTarget(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(pendingCookie)
	if err != nil || c.Value == "" {
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     pendingCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	target, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return ""
	}
	return target
}

// setFlash attaches a one-shot message key for the next page render.
func (g *Gate) setFlash(w http.ResponseWriter, key string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(key),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// consumeFlash returns the pending message key, clearing it.
func (g *Gate) consumeFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	key, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return key
}

// clearRememberCookie expires the remember-me cookie on the client.
func (g *Gate) clearRememberCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.rememberCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// isProgrammatic reports whether the request comes from a programmatic or
// background caller that expects a status code rather than a login form.
func isProgrammatic(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	accept := r.Header.Get("Accept")
	return accept != "" && !strings.Contains(accept, "text/html") && !strings.Contains(accept, "*/*")
}
