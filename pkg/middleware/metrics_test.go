package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
)

// observation は記録されたリクエスト1件分。
type observation struct {
	Method string
	Route  string
	Status int
}

// fakeObserver はテスト用のRequestObserver。
type fakeObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (f *fakeObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, observation{Method: method, Route: route, Status: status})
}

// TestMetrics はMetricsミドルウェアを検証する。
func TestMetrics(t *testing.T) {
	t.Parallel()

	obs := &fakeObserver{}
	router := gin.New()
	router.Use(Metrics(obs))
	router.GET("/api/v1/items/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.NoRoute(func(c *gin.Context) {
		c.Status(http.StatusBadGateway)
	})

	for _, target := range []string{"/api/v1/items/1", "/api/v1/items/2", "/products/shoes"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	want := []observation{
		{Method: http.MethodGet, Route: "/api/v1/items/:id", Status: http.StatusOK},
		{Method: http.MethodGet, Route: "/api/v1/items/:id", Status: http.StatusOK},
		{Method: http.MethodGet, Route: UpstreamRoute, Status: http.StatusBadGateway},
	}
	if diff := cmp.Diff(want, obs.seen); diff != "" {
		t.Errorf("記録内容が一致しない (-want +got):\n%s", diff)
	}
}
