package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/civicatlas/contribution-wizard/internal/config"
)

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	h := newTestHarness(t, config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	})

	res1 := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	res2 := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/wizards/w-1/submit", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodGet, "/v1/wizards/w-1", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("expected first request to finish with 204, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("first request did not finish")
	}
}

func TestSessionTokenMiddlewareResolvesOwner(t *testing.T) {
	h := newTestHarness(t, config.Config{})
	rt := &Router{deps: Dependencies{Sessions: h.tokens}}

	var owner string
	handler := sessionTokenMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner = rt.owner(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, "user-7"))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if owner != "user-7" {
		t.Fatalf("expected owner user-7, got %q", owner)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if owner != "" {
		t.Fatalf("expected anonymous owner for invalid token, got %q", owner)
	}
}
