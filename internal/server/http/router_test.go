package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"nameday/internal/nameday"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type memoryStore struct {
	mu  sync.Mutex
	cal nameday.Calendar
}

func (m *memoryStore) Name() string { return "memory" }

func (m *memoryStore) Load(context.Context) (nameday.Calendar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cal, nil
}

func (m *memoryStore) Save(_ context.Context, cal nameday.Calendar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cal = cal
	return nil
}

type sourceFunc func(ctx context.Context) (nameday.Calendar, error)

func (f sourceFunc) Fetch(ctx context.Context) (nameday.Calendar, error) { return f(ctx) }

func sampleCalendar() nameday.Calendar {
	return nameday.Calendar{
		"01-01": {},
		"01-03": {"Alfred", "Alfrida"},
		"01-10": {"Sigbritt"},
		"07-22": {"Magdalena", "Madeleine"},
		"12-24": {"Eva", "Adam"},
	}
}

type testServer struct {
	router *gin.Engine
	store  *memoryStore
}

func newTestServer(t *testing.T, apiKey string, src nameday.Source) *testServer {
	t.Helper()
	store := &memoryStore{cal: sampleCalendar()}
	clock := func() time.Time { return time.Date(2024, 7, 22, 12, 0, 0, 0, time.UTC) }
	svc := nameday.NewService(store, src, nameday.WithClock(clock))
	require.NoError(t, svc.Load(context.Background()))
	return &testServer{
		router: NewRouter(RouterConfig{Service: svc, APIKey: apiKey, Registry: prometheus.NewRegistry()}),
		store:  store,
	}
}

func (s *testServer) do(t *testing.T, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRoot(t *testing.T) {
	w := newTestServer(t, "", nil).do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	require.Equal(t, "Swedish Nameday API", body["name"])
	require.Equal(t, "1.0.0", body["version"])
	require.Equal(t, "/api/date/{month}/{day}", body["endpoints"].(map[string]any)["date"])
}

func TestToday(t *testing.T) {
	w := newTestServer(t, "", nil).do(t, http.MethodGet, "/api/today", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, dateResponse{Date: "07-22", Names: []string{"Magdalena", "Madeleine"}, Count: 2}, decode[dateResponse](t, w))
}

func TestDate(t *testing.T) {
	srv := newTestServer(t, "", nil)

	tests := []struct {
		path   string
		status int
		detail string
		want   dateResponse
	}{
		{path: "/api/date/1/3", status: http.StatusOK, want: dateResponse{Date: "01-03", Names: []string{"Alfred", "Alfrida"}, Count: 2}},
		{path: "/api/date/01/01", status: http.StatusOK, want: dateResponse{Date: "01-01", Names: []string{}, Count: 0}},
		{path: "/api/date/2/29", status: http.StatusOK, want: dateResponse{Date: "02-29", Names: []string{}, Count: 0}},
		{path: "/api/date/13/1", status: http.StatusBadRequest, detail: "Month must be between 1 and 12"},
		{path: "/api/date/0/1", status: http.StatusBadRequest, detail: "Month must be between 1 and 12"},
		{path: "/api/date/1/32", status: http.StatusBadRequest, detail: "Day must be between 1 and 31"},
		{path: "/api/date/2/30", status: http.StatusBadRequest, detail: "Invalid date"},
		{path: "/api/date/4/31", status: http.StatusBadRequest, detail: "Invalid date"},
		{path: "/api/date/jan/1", status: http.StatusUnprocessableEntity, detail: "month must be an integer"},
		{path: "/api/date/1/x", status: http.StatusUnprocessableEntity, detail: "day must be an integer"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := srv.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.detail != "" {
				require.Equal(t, tt.detail, decode[errorResponse](t, w).Detail)
				return
			}
			require.Equal(t, tt.want, decode[dateResponse](t, w))
		})
	}
}

func TestName(t *testing.T) {
	srv := newTestServer(t, "", nil)

	w := srv.do(t, http.MethodGet, "/api/name/eva", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, nameResponse{
		Name:  "eva",
		Dates: []nameday.NameMatch{{Date: "12-24", Name: "Eva"}},
		Count: 1,
	}, decode[nameResponse](t, w))

	w = srv.do(t, http.MethodGet, "/api/name/Zlatan", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "Name 'Zlatan' not found in nameday calendar", decode[errorResponse](t, w).Detail)
}

func TestMonth(t *testing.T) {
	srv := newTestServer(t, "", nil)

	w := srv.do(t, http.MethodGet, "/api/month/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[monthResponse](t, w)
	require.Equal(t, 1, got.Month)
	require.Equal(t, 3, got.Count)
	require.Equal(t, []string{"Sigbritt"}, got.Namedays["01-10"])

	w = srv.do(t, http.MethodGet, "/api/month/3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, decode[monthResponse](t, w).Count)

	w = srv.do(t, http.MethodGet, "/api/month/13", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Month must be between 1 and 12", decode[errorResponse](t, w).Detail)
}

func TestAll(t *testing.T) {
	w := newTestServer(t, "", nil).do(t, http.MethodGet, "/api/all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[allResponse](t, w)
	require.Equal(t, 5, got.TotalDates)
	require.Equal(t, 7, got.TotalNames)
	require.Equal(t, sampleCalendar(), got.Namedays)
}

func TestRefresh(t *testing.T) {
	fresh := nameday.Calendar{"02-14": {"Valentin"}, "02-15": {"Sigfrid", "Sigrid"}}
	ok := sourceFunc(func(context.Context) (nameday.Calendar, error) { return fresh, nil })
	failing := sourceFunc(func(context.Context) (nameday.Calendar, error) { return nil, errors.New("wikipedia down") })

	t.Run("key not configured", func(t *testing.T) {
		w := newTestServer(t, "", ok).do(t, http.MethodPost, "/api/refresh", map[string]string{"X-API-Key": "anything"})
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.Equal(t, "API key not configured on server", decode[errorResponse](t, w).Detail)
	})

	t.Run("wrong key", func(t *testing.T) {
		srv := newTestServer(t, "secret", ok)
		for _, header := range []map[string]string{nil, {"X-API-Key": "nope"}} {
			w := srv.do(t, http.MethodPost, "/api/refresh", header)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.Equal(t, "Invalid API key", decode[errorResponse](t, w).Detail)
		}
	})

	t.Run("fetch failure keeps data", func(t *testing.T) {
		srv := newTestServer(t, "secret", failing)
		w := srv.do(t, http.MethodPost, "/api/refresh", map[string]string{"X-API-Key": "secret"})
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.Equal(t, "Failed to fetch data from Wikipedia", decode[errorResponse](t, w).Detail)

		w = srv.do(t, http.MethodGet, "/api/all", nil)
		require.Equal(t, 5, decode[allResponse](t, w).TotalDates)
	})

	t.Run("success", func(t *testing.T) {
		srv := newTestServer(t, "secret", ok)
		w := srv.do(t, http.MethodPost, "/api/refresh", map[string]string{"X-API-Key": "secret"})
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, refreshResponse{Status: "success", TotalDates: 2, TotalNames: 3}, decode[refreshResponse](t, w))
		require.Equal(t, fresh, srv.store.cal)

		w = srv.do(t, http.MethodGet, "/api/name/valentin", nil)
		require.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHealthAndDocs(t *testing.T) {
	srv := newTestServer(t, "", nil)

	w := srv.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", decode[map[string]any](t, w)["status"])

	w = srv.do(t, http.MethodGet, "/docs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/html")
	require.Contains(t, w.Body.String(), "/openapi.json")

	w = srv.do(t, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	doc := decode[map[string]any](t, w)
	require.Contains(t, doc["paths"].(map[string]any), "/api/date/{month}/{day}")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, "", nil)
	srv.do(t, http.MethodGet, "/api/today", nil)
	srv.do(t, http.MethodGet, "/api/name/nobody", nil)

	w := srv.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, `nameday_http_requests_total{method="GET",route="/api/today",status="200"} 1`)
	require.Contains(t, body, `route="/api/name/:name",status="404"`)
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, "", nil)

	w := srv.do(t, http.MethodGet, "/", map[string]string{"X-Request-ID": "abc-123"})
	require.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	w = srv.do(t, http.MethodGet, "/", nil)
	require.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestUnknownRoute(t *testing.T) {
	w := newTestServer(t, "", nil).do(t, http.MethodGet, "/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "Not Found", decode[errorResponse](t, w).Detail)
}

func TestCORSPreflight(t *testing.T) {
	w := newTestServer(t, "", nil).do(t, http.MethodOptions, "/api/refresh", map[string]string{
		"Origin":                        "https://example.com",
		"Access-Control-Request-Method": "POST",
	})
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.True(t, strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "POST"))
}

func TestTracingSpansUseRouteTemplate(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	svc := nameday.NewService(&memoryStore{cal: sampleCalendar()}, nil)
	require.NoError(t, svc.Load(context.Background()))
	router := NewRouter(RouterConfig{Service: svc, Tracer: tp.Tracer("test")})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/name/Eva", nil))
	require.Equal(t, http.StatusOK, w.Code)

	ended := rec.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "GET /api/name/:name", ended[0].Name())
}
