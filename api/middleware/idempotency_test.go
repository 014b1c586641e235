package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"call":%d}`, *calls)))
	})
}

func TestIdempotencyPassesThroughWithoutHeader(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(countingHandler(&calls, http.StatusCreated))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{}`)))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored without a key")
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(countingHandler(&calls, http.StatusCreated))

	var bodies []string
	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{"paymentMethod":"paypal"}`))
		req.Header.Set(IdempotencyHeader, "abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		bodies = append(bodies, rec.Body.String())
		if i == 1 && rec.Header().Get("Idempotent-Replayed") != "true" {
			t.Fatalf("expected replay header on second call")
		}
	}
	if calls != 1 {
		t.Fatalf("expected handler once, ran %d", calls)
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("replayed body differs: %q vs %q", bodies[0], bodies[1])
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(countingHandler(&calls, http.StatusCreated))

	req := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{"a":1}`))
	req.Header.Set(IdempotencyHeader, "abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{"a":2}`))
	req.Header.Set(IdempotencyHeader, "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("unexpected code %s", payload.Error.Code)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(countingHandler(&calls, http.StatusInternalServerError))

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{}`))
		req.Header.Set(IdempotencyHeader, "retry-me")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected retry after server error, handler ran %d", calls)
	}
}

func TestIdempotencyPendingKeyConflicts(t *testing.T) {
	store := newFakeStore()
	key := store.IdempotencyKey("|"+http.MethodPost+"|/api/orders", "busy")
	pending, _ := json.Marshal(idempotencyRecord{Pending: true, RequestHash: hashBody([]byte(`{}`))})
	store.data[key] = string(pending)

	calls := 0
	handler := Idempotency(store, nil)(countingHandler(&calls, http.StatusCreated))
	req := requestWithPattern(http.MethodPost, "/api/orders", "/api/orders", strings.NewReader(`{}`))
	req.Header.Set(IdempotencyHeader, "busy")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict || calls != 0 {
		t.Fatalf("expected 409 without running handler, got %d calls=%d", rec.Code, calls)
	}
}
