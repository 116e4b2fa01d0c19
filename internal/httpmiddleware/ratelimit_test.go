package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestTokenBucketRefills(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)}
	l := NewTokenBucket(2, 60)
	l.now = clk.now

	for i := 0; i < 2; i++ {
		if ok, _ := l.allow("kiosk"); !ok {
			t.Fatalf("request %d rejected within capacity", i)
		}
	}
	ok, wait := l.allow("kiosk")
	if ok {
		t.Fatal("burst above capacity allowed")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("unexpected wait %s", wait)
	}
	if ok, _ := l.allow("other"); !ok {
		t.Error("limits leaked across clients")
	}

	clk.t = clk.t.Add(time.Second)
	if ok, _ := l.allow("kiosk"); !ok {
		t.Error("token not refilled after a second")
	}
}

func TestTokenBucketSweepsIdleClients(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)}
	l := NewTokenBucket(1, 1)
	l.now = clk.now
	l.allow("a")
	clk.t = clk.t.Add(11 * time.Minute)
	l.allow("b")
	if _, ok := l.state["a"]; ok {
		t.Error("idle bucket kept")
	}
}

func TestGinMiddlewareRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewTokenBucket(1, 1)
	r := gin.New()
	r.POST("/checkins", l.GinMiddleware(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/checkins", nil)
		req.RemoteAddr = "10.0.0.7:5555"
		r.ServeHTTP(w, req)
		return w
	}
	if w := do(); w.Code != http.StatusCreated {
		t.Fatalf("first request got %d", w.Code)
	}
	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}
