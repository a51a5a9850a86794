package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kirillkom/crop-advisor/internal/infrastructure/resilience"
)

const (
	BackendForest = "forest"
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

type Config struct {
	APIPort  string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=debug info warn warning error"`

	ArtifactDir  string
	ModelBackend string `validate:"oneof=forest onnx remote"`
	ModelPath    string `validate:"required_unless=ModelBackend remote"`
	ManifestPath string `validate:"required"`
	CodecPath    string `validate:"required"`
	ClassesPath  string
	ModelVersion string

	ONNXLibraryPath string
	ONNXInputName   string `validate:"required_if=ModelBackend onnx"`
	ONNXOutputName  string `validate:"required_if=ModelBackend onnx"`

	RemoteModelURL            string `validate:"required_if=ModelBackend remote,omitempty,url"`
	RemoteModelTimeoutSeconds int    `validate:"gte=1"`

	CropCatalogPath string

	PostgresDSN string

	NATSURL     string
	NATSSubject string `validate:"required_with=NATSURL"`

	APIRateLimitRPS       float64 `validate:"gte=0"`
	APIRateLimitBurst     int     `validate:"gte=0"`
	APIMaxInFlight        int     `validate:"gte=0"`
	APIBackpressureWaitMS int     `validate:"gte=0"`
	CORSAllowedOrigins    []string

	RecommendationMinConfidence float64 `validate:"gte=0,lte=1"`

	ResilienceRetryMaxAttempts        int     `validate:"gte=0"`
	ResilienceRetryInitialBackoffMS   int     `validate:"gte=0"`
	ResilienceRetryMaxBackoffMS       int     `validate:"gte=0"`
	ResilienceBreakerEnabled          bool
	ResilienceBreakerMinRequests      int     `validate:"gte=0"`
	ResilienceBreakerFailureRatio     float64 `validate:"gte=0,lte=1"`
	ResilienceBreakerOpenTimeoutMS    int     `validate:"gte=0"`
	ResilienceBreakerHalfOpenMaxCalls int     `validate:"gte=0"`
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: strings.ToLower(mustEnv("LOG_LEVEL", "info")),

		ArtifactDir:  mustEnv("ARTIFACT_DIR", "./models"),
		ModelBackend: strings.ToLower(mustEnv("MODEL_BACKEND", BackendForest)),
		ModelPath:    mustEnv("MODEL_PATH", "crop_model.json"),
		ManifestPath: mustEnv("MANIFEST_PATH", "feature_names.json"),
		CodecPath:    mustEnv("CODEC_PATH", "label_encoders.json"),
		ClassesPath:  mustEnv("CLASSES_PATH", ""),
		ModelVersion: mustEnv("MODEL_VERSION", ""),

		ONNXLibraryPath: mustEnv("ONNX_LIBRARY_PATH", ""),
		ONNXInputName:   mustEnv("ONNX_INPUT_NAME", "float_input"),
		ONNXOutputName:  mustEnv("ONNX_OUTPUT_NAME", "probabilities"),

		RemoteModelURL:            mustEnv("REMOTE_MODEL_URL", ""),
		RemoteModelTimeoutSeconds: mustEnvInt("REMOTE_MODEL_TIMEOUT_SECONDS", 10),

		CropCatalogPath: mustEnv("CROP_CATALOG_PATH", ""),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "crops.recommended"),

		APIRateLimitRPS:       mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:     mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:        mustEnvInt("API_MAX_IN_FLIGHT", 64),
		APIBackpressureWaitMS: mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250),
		CORSAllowedOrigins:    mustEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		RecommendationMinConfidence: mustEnvFloat("RECOMMENDATION_MIN_CONFIDENCE", 0.05),

		ResilienceRetryMaxAttempts:        mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 2),
		ResilienceRetryInitialBackoffMS:   mustEnvInt("RESILIENCE_RETRY_INITIAL_BACKOFF_MS", 50),
		ResilienceRetryMaxBackoffMS:       mustEnvInt("RESILIENCE_RETRY_MAX_BACKOFF_MS", 200),
		ResilienceBreakerEnabled:          mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		ResilienceBreakerMinRequests:      mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", 5),
		ResilienceBreakerFailureRatio:     mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.5),
		ResilienceBreakerOpenTimeoutMS:    mustEnvInt("RESILIENCE_BREAKER_OPEN_TIMEOUT_MS", 15000),
		ResilienceBreakerHalfOpenMaxCalls: mustEnvInt("RESILIENCE_BREAKER_HALF_OPEN_MAX_CALLS", 1),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Resilience converts the flat env settings into the executor policy.
func (c Config) Resilience() resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        c.ResilienceRetryMaxAttempts,
		RetryInitialBackoff:     time.Duration(c.ResilienceRetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:         time.Duration(c.ResilienceRetryMaxBackoffMS) * time.Millisecond,
		RetryMultiplier:         2.0,
		BreakerEnabled:          c.ResilienceBreakerEnabled,
		BreakerMinRequests:      uint32(c.ResilienceBreakerMinRequests),
		BreakerFailureRatio:     c.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(c.ResilienceBreakerOpenTimeoutMS) * time.Millisecond,
		BreakerHalfOpenMaxCalls: uint32(c.ResilienceBreakerHalfOpenMaxCalls),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
