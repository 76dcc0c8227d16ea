// ABOUTME: Tests for the interactive login, authenticate, and logout flows
// ABOUTME: Exercises the full login round trip including the pending redirect target

package secure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/me/gatehouse/internal/session"
)

// carryCookies copies response cookies onto the next request, dropping
// cleared ones, like a browser would.
func carryCookies(req *http.Request, from ...*httptest.ResponseRecorder) {
	jar := map[string]*http.Cookie{}
	for _, rec := range from {
		for _, c := range rec.Result().Cookies() {
			if c.MaxAge < 0 {
				delete(jar, c.Name)
				continue
			}
			jar[c.Name] = c
		}
	}
	for _, c := range jar {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

func TestLoginRoundTrip_OriginalURLRecovered(t *testing.T) {
	f := newGateFixture(t)

	var reached bool
	protected := f.gate.Protect(okHandler(&reached))

	// 1. Interactive request bounces to the login entry point.
	req1 := httptest.NewRequest(http.MethodGet, "/reports/42", nil)
	rec1 := httptest.NewRecorder()
	protected.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusSeeOther || rec1.Header().Get("Location") != "/login" {
		t.Fatalf("step 1: got %d %q", rec1.Code, rec1.Header().Get("Location"))
	}

	// 2. The login form renders, minting a CSRF token.
	req2 := httptest.NewRequest(http.MethodGet, "/login", nil)
	carryCookies(req2, rec1)
	rec2 := httptest.NewRecorder()
	f.gate.LoginPage(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("step 2: status = %d, want 200", rec2.Code)
	}
	csrf := cookieByName(rec2, "gatehouse_csrf")
	if csrf == nil {
		t.Fatal("step 2: no CSRF cookie")
	}
	if !strings.Contains(rec2.Body.String(), csrf.Value) {
		t.Error("step 2: CSRF token not embedded in the form")
	}

	// 3. Submitting credentials redirects back to the original URL.
	form := url.Values{
		"username":   {"alice"},
		"password":   {"s3cret"},
		"csrf_token": {csrf.Value},
	}
	req3 := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req3.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	carryCookies(req3, rec1, rec2)
	rec3 := httptest.NewRecorder()
	f.gate.Authenticate(rec3, req3)
	if rec3.Code != http.StatusSeeOther {
		t.Fatalf("step 3: status = %d, want 303", rec3.Code)
	}
	if loc := rec3.Header().Get("Location"); loc != "/reports/42" {
		t.Errorf("step 3: Location = %q, want /reports/42", loc)
	}

	// The pending target is discarded after the single round trip.
	pending := cookieByName(rec3, "gatehouse_return")
	if pending == nil || pending.MaxAge != -1 {
		t.Error("step 3: pending target not cleared")
	}

	// 4. The original request now passes the gate.
	req4 := httptest.NewRequest(http.MethodGet, "/reports/42", nil)
	carryCookies(req4, rec1, rec2, rec3)
	rec4 := httptest.NewRecorder()
	protected.ServeHTTP(rec4, req4)
	if !reached {
		t.Fatal("step 4: handler not reached after login")
	}
}

func TestAuthenticate_RememberSetsCookie(t *testing.T) {
	f := newGateFixture(t)

	form := url.Values{
		"username":   {"alice"},
		"password":   {"s3cret"},
		"remember":   {"on"},
		"csrf_token": {"tok"},
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "gatehouse_csrf", Value: "tok"})
	rec := httptest.NewRecorder()
	f.gate.Authenticate(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	rm := cookieByName(rec, "rememberme")
	if rm == nil {
		t.Fatal("no remember-me cookie set")
	}

	tok, ok := f.gate.codec.Decode(rm.Value)
	if !ok {
		t.Fatalf("remember-me cookie %q does not decode", rm.Value)
	}
	if tok.Username != "alice" {
		t.Errorf("token username = %q, want alice", tok.Username)
	}
	if !f.gate.codec.Verify(tok) {
		t.Error("token does not verify")
	}

	// Client-side expiry mirrors the token's own window (default 30 days).
	wantExpiry := time.Now().Add(DefaultRememberFor)
	if got := time.UnixMilli(tok.ExpiresAt); got.Before(wantExpiry.Add(-time.Minute)) || got.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("token expiry = %v, want ~%v", got, wantExpiry)
	}
	if rm.MaxAge != int(DefaultRememberFor/time.Second) {
		t.Errorf("cookie MaxAge = %d, want %d", rm.MaxAge, int(DefaultRememberFor/time.Second))
	}
}

func TestAuthenticate_NoRememberNoCookie(t *testing.T) {
	f := newGateFixture(t)

	form := url.Values{
		"username":   {"alice"},
		"password":   {"s3cret"},
		"csrf_token": {"tok"},
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "gatehouse_csrf", Value: "tok"})
	rec := httptest.NewRecorder()
	f.gate.Authenticate(rec, req)

	if cookieByName(rec, "rememberme") != nil {
		t.Error("remember-me cookie set without the remember flag")
	}
}

func TestAuthenticate_FailureReturnsToLogin(t *testing.T) {
	f := newGateFixture(t)
	f.verifier.authenticate = func(sess *session.Session, username, password string) (bool, error) {
		return false, nil
	}

	form := url.Values{
		"username":   {"alice"},
		"password":   {"wrong"},
		"csrf_token": {"tok"},
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "gatehouse_csrf", Value: "tok"})
	req.AddCookie(&http.Cookie{Name: "gatehouse_return", Value: url.QueryEscape("/reports/42")})
	rec := httptest.NewRecorder()
	f.gate.Authenticate(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("got %d %q, want 303 /login", rec.Code, rec.Header().Get("Location"))
	}

	flash := cookieByName(rec, "gatehouse_flash")
	if flash == nil {
		t.Fatal("no error indicator set")
	}
	if key, _ := url.QueryUnescape(flash.Value); key != FlashError {
		t.Errorf("flash = %q, want %q", key, FlashError)
	}
	// Pending target survives the failed attempt.
	if c := cookieByName(rec, "gatehouse_return"); c != nil && c.MaxAge < 0 {
		t.Error("pending target cleared on failed authentication")
	}
	// No session was established.
	if cookieByName(rec, f.sessions.CookieName()) != nil {
		t.Error("session cookie set on failed authentication")
	}
}

func TestAuthenticate_MissingUsername(t *testing.T) {
	f := newGateFixture(t)

	form := url.Values{
		"password":   {"s3cret"},
		"csrf_token": {"tok"},
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "gatehouse_csrf", Value: "tok"})
	rec := httptest.NewRecorder()
	f.gate.Authenticate(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("got %d %q, want 303 /login", rec.Code, rec.Header().Get("Location"))
	}
}

func TestAuthenticate_InvalidCSRF(t *testing.T) {
	f := newGateFixture(t)

	form := url.Values{
		"username":   {"alice"},
		"csrf_token": {"forged"},
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "gatehouse_csrf", Value: "tok"})
	rec := httptest.NewRecorder()
	f.gate.Authenticate(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("got %d %q, want 303 /login", rec.Code, rec.Header().Get("Location"))
	}
	if cookieByName(rec, f.sessions.CookieName()) != nil {
		t.Error("session established despite CSRF failure")
	}
}

func TestLoginPage_AlreadyConnectedRedirects(t *testing.T) {
	f := newGateFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(f.authenticatedCookie(t, "alice"))
	rec := httptest.NewRecorder()
	f.gate.LoginPage(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}

func TestLoginPage_TrustAuthenticatableSkipsForm(t *testing.T) {
	f := newGateFixture(t)
	f.trust.done = true
	f.trust.user = "alice"

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: "gatehouse_return", Value: url.QueryEscape("/dashboard")})
	rec := httptest.NewRecorder()
	f.gate.LoginPage(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303 (form must not render)", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location = %q, want /dashboard", loc)
	}
}

func TestLogout(t *testing.T) {
	f := newGateFixture(t)

	cookie := f.authenticatedCookie(t, "alice")
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	req.AddCookie(&http.Cookie{Name: "rememberme", Value: "whatever"})
	rec := httptest.NewRecorder()
	f.gate.Logout(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("got %d %q, want 303 /login", rec.Code, rec.Header().Get("Location"))
	}

	if f.verifier.disconnectCalls != 1 || f.verifier.disconnectedCalls != 1 {
		t.Errorf("disconnect hooks = %d/%d, want 1/1", f.verifier.disconnectCalls, f.verifier.disconnectedCalls)
	}
	if f.trust.disconnectedCalls != 1 {
		t.Errorf("trust OnDisconnected calls = %d, want 1", f.trust.disconnectedCalls)
	}

	sc := cookieByName(rec, f.sessions.CookieName())
	if sc == nil || sc.MaxAge != -1 {
		t.Error("session cookie not cleared")
	}
	rm := cookieByName(rec, "rememberme")
	if rm == nil || rm.MaxAge != -1 {
		t.Error("remember-me cookie not cleared")
	}
	flash := cookieByName(rec, "gatehouse_flash")
	if flash == nil {
		t.Fatal("no logout indicator set")
	}
	if key, _ := url.QueryUnescape(flash.Value); key != FlashLogout {
		t.Errorf("flash = %q, want %q", key, FlashLogout)
	}

	// The stored session is gone.
	if _, err := f.store.Get(context.Background(), cookie.Value); err == nil {
		t.Error("session still in store after logout")
	}
}
