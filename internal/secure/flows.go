// ABOUTME: Interactive login, authenticate, and logout HTTP handlers
// ABOUTME: The login entry point is itself protected by the same silent recovery attempts

package secure

import (
	"crypto/rand"
	"encoding/base64"
	"html/template"
	"net/http"
	"time"
)

// csrfCookie is the double-submit cookie protecting the login form.
const csrfCookie = "gatehouse_csrf"

// LoginData is handed to the login form renderer.
type LoginData struct {
	// Flash is the pending one-shot message key, e.g. FlashError after a
	// failed attempt or FlashLogout after a sign-off. Empty when none.
	Flash string

	// CSRFToken must be submitted back as the csrf_token form field.
	CSRFToken string
}

// LoginPage is the GET handler for the interactive login entry point.
// A visit while already authenticated, or while a remember-me cookie or
// trust assertion can establish identity, redirects immediately instead of
// rendering the form.
func (g *Gate) LoginPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := g.sessions.Lookup(ctx, r)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	if sess != nil && g.verifier.IsConnected(sess) {
		if err := g.verifier.OnAuthenticated(ctx, sess); err != nil {
			g.fail(w, r, err)
			return
		}
		g.redirectAfterAuth(w, r, false)
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

	token, err := g.ensureCSRFToken(w, r)
	if err != nil {
		g.fail(w, r, err)
		return
	}

	// The pending target cookie survives the render untouched.
	g.renderLogin(w, r, LoginData{
		Flash:     g.consumeFlash(w, r),
		CSRFToken: token,
	})
}

// Authenticate is the POST handler for login form submissions.
func (g *Gate) Authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		g.setFlash(w, FlashError)
		http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
		return
	}
	if !g.validateCSRF(r) {
		g.setFlash(w, FlashError)
		http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	remember := r.FormValue("remember") != ""

	if username == "" {
		g.setFlash(w, FlashError)
		http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
		return
	}

	sess, err := g.sessions.Start(ctx, r)
	if err != nil {
		g.fail(w, r, err)
		return
	}

	allowed, err := g.verifier.Authenticate(ctx, sess, username, password)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	if !allowed {
		g.setFlash(w, FlashError)
		http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
		return
	}

	if remember {
		expiresAt := time.Now().Add(g.rememberFor)
		http.SetCookie(w, &http.Cookie{
			Name:     g.rememberCookie,
			Value:    g.codec.Encode(username, expiresAt.UnixMilli()),
			Path:     "/",
			Expires:  expiresAt,
			MaxAge:   int(g.rememberFor / time.Second),
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}

	if err := g.sessions.Commit(ctx, w, r, sess); err != nil {
		g.fail(w, r, err)
		return
	}
	if err := g.verifier.OnAuthenticated(ctx, sess); err != nil {
		g.fail(w, r, err)
		return
	}

	g.redirectAfterAuth(w, r, false)
}

// Logout terminates the session, expires the remember-me cookie, notifies
// the verifier and the trust authority, and routes back to the login page.
func (g *Gate) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := g.sessions.Lookup(ctx, r)
	if err != nil {
		g.fail(w, r, err)
		return
	}

	if err := g.verifier.OnDisconnect(ctx, sess); err != nil {
		g.fail(w, r, err)
		return
	}
	if err := g.sessions.Destroy(ctx, w, sess); err != nil {
		g.fail(w, r, err)
		return
	}
	g.clearRememberCookie(w)
	if err := g.verifier.OnDisconnected(ctx); err != nil {
		g.fail(w, r, err)
		return
	}
	if err := g.trust.OnDisconnected(ctx, r); err != nil {
		g.fail(w, r, err)
		return
	}

	g.setFlash(w, FlashLogout)
	http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
}

// ensureCSRFToken returns the request's CSRF token, minting and setting a
// new one when absent.
func (g *Gate) ensureCSRFToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(csrfCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}

	token, err := generateSecureToken(32)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

// validateCSRF checks the submitted csrf_token against the cookie.
func (g *Gate) validateCSRF(r *http.Request) bool {
	c, err := r.Cookie(csrfCookie)
	if err != nil || c.Value == "" {
		return false
	}
	token := r.FormValue("csrf_token")
	return token != "" && token == c.Value
}

// generateSecureToken returns n random bytes, base64url encoded.
func generateSecureToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var defaultLoginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
{{if eq .Flash "secure.error"}}<p>Invalid username or password.</p>{{end}}
{{if eq .Flash "secure.logout"}}<p>You have been logged out.</p>{{end}}
<form method="post">
  <input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
  <label>Username <input type="text" name="username" required></label>
  <label>Password <input type="password" name="password"></label>
  <label><input type="checkbox" name="remember"> Remember me</label>
  <button type="submit">Sign in</button>
</form>
</body>
</html>
`))

// defaultRenderLogin writes a bare-bones login form. Deployments replace it
// through Config.RenderLogin.
func defaultRenderLogin(w http.ResponseWriter, r *http.Request, data LoginData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = defaultLoginTemplate.Execute(w, data)
}
