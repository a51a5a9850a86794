package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/artifact"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/resilience"
)

const (
	predictPath      = "/predict_proba"
	predictOperation = "remote_predict_proba"
)

type Config struct {
	BaseURL      string
	Timeout      time.Duration
	FeatureNames []string
	Classes      []string
}

// Client scores vectors on a model server that exposes predict_proba over HTTP.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	featureNames []string
	classes      []string
	executor     *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remote model url is required")
	}
	if len(cfg.FeatureNames) == 0 {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, "remote model", fmt.Errorf("feature names are required"))
	}
	if err := artifact.ValidateLabels(cfg.Classes); err != nil {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, "remote model", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
		featureNames: append([]string(nil), cfg.FeatureNames...),
		classes:      append([]string(nil), cfg.Classes...),
		executor:     executor,
	}, nil
}

func (c *Client) Labels() []string { return append([]string(nil), c.classes...) }

func (c *Client) NumFeatures() int { return len(c.featureNames) }

type predictRequest struct {
	FeatureNames []string    `json:"feature_names"`
	Instances    [][]float64 `json:"instances"`
}

type predictResponse struct {
	Classes       []string    `json:"classes"`
	Probabilities [][]float64 `json:"probabilities"`
}

func (c *Client) PredictProba(ctx context.Context, vector domain.FeatureVector) ([]domain.ClassProbability, error) {
	if len(vector) != len(c.featureNames) {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, "remote predict",
			fmt.Errorf("vector has %d features, model expects %d", len(vector), len(c.featureNames)))
	}

	request := predictRequest{
		FeatureNames: c.featureNames,
		Instances:    [][]float64{vector},
	}
	response, err := resilience.Call(ctx, c.executor, predictOperation, func(ctx context.Context) (predictResponse, error) {
		var response predictResponse
		err := c.postJSON(ctx, predictPath, request, &response)
		return response, err
	}, classifyRemoteError)
	if err != nil {
		return nil, wrapUnavailable(err)
	}

	return c.decode(response)
}

func (c *Client) decode(response predictResponse) ([]domain.ClassProbability, error) {
	const op = "remote predict"

	if len(response.Probabilities) != 1 {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op,
			fmt.Errorf("expected one probability row, got %d", len(response.Probabilities)))
	}
	row := response.Probabilities[0]
	if len(row) != len(c.classes) {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op,
			fmt.Errorf("expected %d probabilities, got %d", len(c.classes), len(row)))
	}
	if len(response.Classes) > 0 {
		if len(response.Classes) != len(c.classes) {
			return nil, domain.WrapError(domain.ErrCorruptArtifact, op,
				fmt.Errorf("server reports %d classes, expected %d", len(response.Classes), len(c.classes)))
		}
		for i, label := range response.Classes {
			if label != c.classes[i] {
				return nil, domain.WrapError(domain.ErrCorruptArtifact, op,
					fmt.Errorf("server class %d is %q, expected %q", i, label, c.classes[i]))
			}
		}
	}

	out := make([]domain.ClassProbability, len(row))
	for i, p := range row {
		out[i] = domain.ClassProbability{Label: c.classes[i], Probability: p}
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote predict request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapError(domain.ErrCorruptArtifact, "decode predict response", err)
	}
	return nil
}

// StatusError is a non-2xx answer from the model server. A 400 or 422 means the
// server rejected the feature contract and matches domain.ErrCorruptArtifact.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("model server status: %s", e.Status)
	}
	return fmt.Sprintf("model server status: %s: %s", e.Status, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == domain.ErrCorruptArtifact && e.rejectsContract()
}

func (e *StatusError) rejectsContract() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
}

// transient reports answers of a server that is loading, overloaded or behind an
// unhealthy proxy. A retry may land on a ready replica.
func (e *StatusError) transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// unavailable reports answers after which this server cannot score anything:
// transient overload, a missing predict route, or inference crashing.
func (e *StatusError) unavailable() bool {
	return e.transient() || e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusInternalServerError
}

// classifyRemoteError retries only transient failures. Inference errors on the
// server are deterministic for a given vector, so a 500 counts against the
// breaker without being retried.
func classifyRemoteError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return resilience.ErrorClassification{Retryable: statusErr.transient(), RecordFailure: true}
	}
	if domain.IsKind(err, domain.ErrCorruptArtifact) {
		return resilience.ErrorClassification{RecordFailure: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// wrapUnavailable turns failures after which the server cannot answer into
// ModelUnavailableError. Contract and decoding errors pass through as corrupt.
func wrapUnavailable(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrCorruptArtifact) {
		return err
	}
	if resilience.IsCircuitOpen(err) {
		return &domain.ModelUnavailableError{Reason: "remote model circuit is open", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ModelUnavailableError{Reason: "remote model timed out", Err: err}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if !statusErr.unavailable() {
			return err
		}
		return &domain.ModelUnavailableError{Reason: "remote model answered " + statusErr.Status, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &domain.ModelUnavailableError{Reason: "remote model is unreachable", Err: err}
	}
	return err
}
