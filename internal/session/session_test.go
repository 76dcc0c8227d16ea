// ABOUTME: Tests for the session manager and in-memory store
// ABOUTME: Covers lazy creation, commit, expiry, and destroy

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestManager_LookupMissing(t *testing.T) {
	m := NewManager(NewMemoryStore(), "", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := m.Lookup(context.Background(), req)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if sess != nil {
		t.Errorf("Lookup() = %+v, want nil", sess)
	}
}

func TestManager_StartCommitLookup(t *testing.T) {
	m := NewManager(NewMemoryStore(), "", time.Hour)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := m.Start(ctx, req)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sess.ID == "" {
		t.Fatal("fresh session has no ID")
	}
	sess.SetUsername("alice")
	sess.Set("theme", "dark")

	rec := httptest.NewRecorder()
	if err := m.Commit(ctx, rec, req, sess); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("no session cookie set on first commit")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(cookie)
	got, err := m.Lookup(ctx, req2)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got == nil {
		t.Fatal("Lookup() = nil after commit")
	}
	if got.Username() != "alice" || got.Get("theme") != "dark" {
		t.Errorf("session values = %v", got.Values)
	}
	if !got.Authenticated() {
		t.Error("Authenticated() = false")
	}
}

func TestManager_StartReusesExisting(t *testing.T) {
	m := NewManager(NewMemoryStore(), "", time.Hour)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, _ := m.Start(ctx, req)
	rec := httptest.NewRecorder()
	if err := m.Commit(ctx, rec, req, sess); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(rec.Result().Cookies()[0])
	again, err := m.Start(ctx, req2)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if again.ID != sess.ID {
		t.Errorf("Start() created a new session %q, want %q", again.ID, sess.ID)
	}
}

func TestManager_ExpiredSessionIsAbsent(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, "", time.Hour)
	ctx := context.Background()

	sess := &Session{
		ID:        "expired-id",
		Values:    map[string]string{"username": "alice"},
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "expired-id"})
	got, err := m.Lookup(ctx, req)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != nil {
		t.Error("expired session returned from Lookup")
	}
	// Expired sessions are evicted on lookup.
	if _, err := store.Get(ctx, "expired-id"); err == nil {
		t.Error("expired session still in store")
	}
}

func TestManager_Destroy(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, "", time.Hour)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, _ := m.Start(ctx, req)
	rec := httptest.NewRecorder()
	if err := m.Commit(ctx, rec, req, sess); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	rec2 := httptest.NewRecorder()
	if err := m.Destroy(ctx, rec2, sess); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); err == nil {
		t.Error("session still in store after Destroy")
	}

	var cleared bool
	for _, c := range rec2.Result().Cookies() {
		if c.Name == DefaultCookieName && c.MaxAge == -1 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie not cleared")
	}
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = store.Put(ctx, &Session{ID: "live", ExpiresAt: now.Add(time.Hour)})
	_ = store.Put(ctx, &Session{ID: "dead", ExpiresAt: now.Add(-time.Hour)})

	n, err := store.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}
	if _, err := store.Get(ctx, "live"); err != nil {
		t.Error("live session removed")
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Put(ctx, &Session{ID: "s1", Values: map[string]string{"k": "v"}, ExpiresAt: time.Now().Add(time.Hour)})

	a, _ := store.Get(ctx, "s1")
	a.Set("k", "mutated")

	b, _ := store.Get(ctx, "s1")
	if b.Get("k") != "v" {
		t.Error("mutation through one copy leaked into the store")
	}
}
