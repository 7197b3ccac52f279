package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conveyorhq/conveyor/internal/broker"
)

func newTestRouter() http.Handler {
	return NewRouter(RouterServices{
		Registry: broker.NewRegistry(nil, []string{"jobQueue"}),
		Logger:   discardLogger(),
	})
}

func TestRouterHealth(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestRouterProtectedRoutesRequireCredentials(t *testing.T) {
	router := newTestRouter()

	protected := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/queues"},
		{http.MethodGet, "/jobs/jobQueue"},
		{http.MethodPost, "/jobs/jobQueue/submit"},
		{http.MethodGet, "/dashboard/stats"},
		{http.MethodGet, "/webhooks"},
		{http.MethodGet, "/api-keys"},
		{http.MethodPost, "/flows"},
		{http.MethodDelete, "/flows/flow_1_abc"},
	}
	for _, route := range protected {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
