package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func scrape(t *testing.T, m *HTTPServerMetrics) string {
	t.Helper()
	res := httptest.NewRecorder()
	m.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics handler, got %d", res.Code)
	}
	return res.Body.String()
}

func TestMiddlewareCountsNormalizedPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/recommendations/abc", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/recommendations/def", nil))

	body := scrape(t, m)
	want := `crop_advisor_http_requests_total{method="GET",path="/v1/recommendations/{id}",service="api",status="404"} 2`
	if !strings.Contains(body, want) {
		t.Fatalf("expected %q in metrics output:\n%s", want, body)
	}
}

func TestRecordRecommendationAndRejection(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordRecommendation("forest", "rice", 2*time.Millisecond)
	m.RecordRejection("out_of_range")
	m.RecordRejection("")

	body := scrape(t, m)
	for _, want := range []string{
		`crop_advisor_recommend_recommendations_total{crop="rice",service="api"} 1`,
		`crop_advisor_recommend_rejections_total{kind="out_of_range",service="api"} 1`,
		`crop_advisor_recommend_rejections_total{kind="internal",service="api"} 1`,
		`crop_advisor_recommend_duration_seconds_count{backend="forest",service="api"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}

func TestObserveBreakerSetsGauge(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.ObserveBreaker("remote_predict_proba", gobreaker.StateClosed, gobreaker.StateOpen)

	want := `crop_advisor_resilience_circuit_breaker_state{operation="remote_predict_proba",service="api"} 2`
	if body := scrape(t, m); !strings.Contains(body, want) {
		t.Fatalf("expected %q in metrics output:\n%s", want, body)
	}
}
