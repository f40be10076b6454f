package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"project-service/pkg/config"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewStore(client, &config.SessionConfig{
		CookieName: "test_session",
		TTL:        time.Hour,
	})
	return store, mr
}

func newContext(cookies ...*http.Cookie) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "test_session" {
			return ck
		}
	}
	return nil
}

func TestGetWithoutCookieCreatesNewSession(t *testing.T) {
	store, _ := newTestStore(t)
	c, _ := newContext()

	sess, err := store.Get(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.IsNew() {
		t.Fatal("session without cookie must be new")
	}
	if sess.ID == "" {
		t.Fatal("new session must have an id")
	}
}

func TestGetRejectsUnbackedCookieID(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	// A cookie id the server never issued must not be adopted
	c, _ := newContext(&http.Cookie{Name: "test_session", Value: "attacker-chosen-id"})
	sess, err := store.Get(ctx, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.IsNew() {
		t.Fatal("session for an unbacked cookie must be new")
	}
	if sess.ID == "attacker-chosen-id" {
		t.Fatal("client-supplied id must be replaced")
	}

	sess.Set("impersonation", "x")
	if err := store.Save(ctx, c, sess); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if mr.Exists("session:attacker-chosen-id") {
		t.Fatal("server state must never land under the client-supplied id")
	}
}

func TestSaveAndReload(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	c, rec := newContext()
	sess, err := store.Get(ctx, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess.Set("impersonation", `{"state":"impersonating"}`)
	if err := store.Save(ctx, c, sess); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	ck := sessionCookie(rec)
	if ck == nil {
		t.Fatal("save must set the session cookie")
	}
	if ck.Value != sess.ID {
		t.Fatalf("cookie value %q does not match session id %q", ck.Value, sess.ID)
	}

	c2, _ := newContext(ck)
	reloaded, err := store.Get(ctx, c2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reloaded.IsNew() {
		t.Fatal("reloaded session must not be new")
	}
	v, ok := reloaded.Get("impersonation")
	if !ok || v != `{"state":"impersonating"}` {
		t.Fatalf("stored value lost: %q %v", v, ok)
	}
}

func TestSaveWithoutValuesClearsServerState(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	c, _ := newContext()
	sess, _ := store.Get(ctx, c)
	sess.Set("impersonation", "x")
	if err := store.Save(ctx, c, sess); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	sess.Delete("impersonation")
	if err := store.Save(ctx, c, sess); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	if mr.Exists("session:" + sess.ID) {
		t.Fatal("emptied session must leave no redis key")
	}
}

func TestTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	c, _ := newContext()
	sess, _ := store.Get(ctx, c)
	sess.Set("k", "v")
	if err := store.Save(ctx, c, sess); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	ttl, err := store.TTL(ctx, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	ttl, err = store.TTL(ctx, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl != 0 {
		t.Fatalf("expired session must report zero ttl, got %v", ttl)
	}
}

func TestDestroy(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	c, rec := newContext()
	sess, _ := store.Get(ctx, c)
	sess.Set("k", "v")
	if err := store.Save(ctx, c, sess); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	c2, rec2 := newContext(sessionCookie(rec))
	sess2, err := store.Get(ctx, c2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Destroy(ctx, c2, sess2); err != nil {
		t.Fatalf("destroy failed: %v", err)
	}

	if mr.Exists("session:" + sess.ID) {
		t.Fatal("destroyed session must leave no redis key")
	}
	ck := sessionCookie(rec2)
	if ck == nil || ck.MaxAge != -1 {
		t.Fatal("destroy must expire the cookie")
	}
	if len(sess2.Values) != 0 {
		t.Fatal("destroyed session must have no values")
	}
}
