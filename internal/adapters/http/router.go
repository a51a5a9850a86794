package httpadapter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/kirillkom/crop-advisor/internal/adapters/view"
	"github.com/kirillkom/crop-advisor/internal/config"
	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/core/ports"
	"github.com/kirillkom/crop-advisor/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

// HealthInfo describes the loaded model for the detailed health endpoint.
type HealthInfo struct {
	Backend      string
	ModelVersion string
	Features     []string
	Classes      int
}

type Router struct {
	cfg         config.Config
	recommender ports.CropRecommender
	catalog     ports.CategoryCatalog
	history     ports.RecommendationReader
	health      HealthInfo
	metrics     *metrics.HTTPServerMetrics
	now         func() time.Time
}

// NewRouter wires the HTTP surface. history and httpMetrics may be nil.
func NewRouter(
	cfg config.Config,
	recommender ports.CropRecommender,
	catalog ports.CategoryCatalog,
	history ports.RecommendationReader,
	health HealthInfo,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:         cfg,
		recommender: recommender,
		catalog:     catalog,
		history:     history,
		health:      health,
		metrics:     httpMetrics,
		now:         time.Now,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/health", rt.healthDetails)
	mux.HandleFunc("/v1/recommend", rt.recommend)
	mux.HandleFunc("/predict", rt.recommend)
	mux.HandleFunc("/v1/categories", rt.categories)
	mux.HandleFunc("/v1/recommendations", rt.listRecommendations)
	mux.HandleFunc("/v1/recommendations/", rt.getRecommendationByID)
	mux.HandleFunc("/openapi.json", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = corsMiddleware(handler, rt.cfg.CORSAllowedOrigins)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) healthDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"model_loaded":  rt.recommender != nil,
		"backend":       rt.health.Backend,
		"model_version": rt.health.ModelVersion,
		"features":      rt.health.Features,
		"num_features":  len(rt.health.Features),
		"classes":       rt.health.Classes,
		"history":       rt.history != nil,
		"timestamp":     rt.now().UTC(),
	})
}

func (rt *Router) recommend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	in, err := decodeRawInput(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		rt.writeDecodeError(w, r, err)
		return
	}

	start := time.Now()
	rec, err := rt.recommender.Recommend(r.Context(), in)
	if err != nil {
		rt.recordRejections(err)
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRecommendation(rt.health.Backend, rec.Prediction.Primary.Label, time.Since(start))
	}
	writeJSON(w, http.StatusOK, view.NewRecommendation(rec, rt.cfg.RecommendationMinConfidence))
}

// decodeRawInput reads a request record. Field names match exactly. An empty
// body yields an empty record so every field is reported missing.
func decodeRawInput(body io.Reader) (domain.RawInput, error) {
	var in domain.RawInput
	data, err := io.ReadAll(body)
	if err != nil {
		return in, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return in, nil
	}
	if err := in.UnmarshalJSON(data); err != nil {
		return domain.RawInput{}, err
	}
	return in, nil
}

func (rt *Router) writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		rt.recordRejection(view.KindPayloadTooLarge)
		writeJSON(w, http.StatusRequestEntityTooLarge, view.NewMessageError(view.KindPayloadTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)))
	case domain.IsKind(err, domain.ErrInvalidInput):
		rt.recordRejections(err)
		rt.writeError(w, r, err)
	default:
		rt.recordRejection(view.KindInvalidJSON)
		writeJSON(w, http.StatusBadRequest, view.NewMessageError(view.KindInvalidJSON, "request body must be a JSON object"))
	}
}

func (rt *Router) categories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"categorical": rt.catalog.Categories(),
		"numeric":     domain.NumericFields,
		"features":    domain.FeatureOrder(),
	})
}

func (rt *Router) getRecommendationByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if rt.history == nil {
		writeHistoryDisabled(w)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/recommendations/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, view.NewMessageError(view.KindInvalidInput, "recommendation id is required"))
		return
	}

	rec, err := rt.history.GetByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.NewRecommendation(rec, rt.cfg.RecommendationMinConfidence))
}

func (rt *Router) listRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if rt.history == nil {
		writeHistoryDisabled(w)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, view.NewMessageError(view.KindInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	recs, err := rt.history.ListRecent(r.Context(), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	items := make([]view.Recommendation, 0, len(recs))
	for i := range recs {
		items = append(items, view.NewRecommendation(&recs[i], rt.cfg.RecommendationMinConfidence))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(items),
		"items":   items,
	})
}

func (rt *Router) openAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	doc, err := OpenAPIDocument()
	if err != nil {
		slog.Error("openapi_document_invalid", "error", err)
		writeJSON(w, http.StatusInternalServerError, view.NewMessageError(view.KindInternal, "openapi document unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	body := view.NewError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"kind", body.Kind,
			"error", err,
		)
	}
	writeJSON(w, status, body)
}

// recordRejections counts every structured error in err, or its category when
// it carries none.
func (rt *Router) recordRejections(err error) {
	kinded := domain.KindedErrors(err)
	if len(kinded) == 0 {
		rt.recordRejection(view.Kind(err))
	}
	for _, k := range kinded {
		rt.recordRejection(string(k.Kind()))
	}
}

func (rt *Router) recordRejection(kind string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejection(kind)
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func writeHistoryDisabled(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, view.NewMessageError(view.KindNotFound, "history disabled"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
