package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/artifact"
)

type Config struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
	NumFeatures int
	Classes     []string
}

// Model runs a classifier exported with a [1, n_features] float input and a
// [1, n_classes] probability output. The tensors are bound to the session once,
// so calls are serialised.
type Model struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]

	numFeatures int
	classes     []string
}

func New(cfg Config) (*Model, error) {
	const op = "open onnx model"

	if cfg.NumFeatures <= 0 {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op, fmt.Errorf("feature count must be positive, got %d", cfg.NumFeatures))
	}
	if err := artifact.ValidateLabels(cfg.Classes); err != nil {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op, err)
	}

	if !ort.IsInitialized() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	input, err := ort.NewTensor(ort.NewShape(1, int64(cfg.NumFeatures)), make([]float32, cfg.NumFeatures))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(cfg.Classes))))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op,
			fmt.Errorf("create session for %s (input %q, output %q): %w", cfg.ModelPath, cfg.InputName, cfg.OutputName, err))
	}

	return &Model{
		session:     session,
		input:       input,
		output:      output,
		numFeatures: cfg.NumFeatures,
		classes:     append([]string(nil), cfg.Classes...),
	}, nil
}

func (m *Model) Labels() []string { return append([]string(nil), m.classes...) }

func (m *Model) NumFeatures() int { return m.numFeatures }

func (m *Model) PredictProba(ctx context.Context, vector domain.FeatureVector) ([]domain.ClassProbability, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != m.numFeatures {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, "onnx predict",
			fmt.Errorf("vector has %d features, model expects %d", len(vector), m.numFeatures))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, &domain.ModelUnavailableError{Reason: "onnx session is closed"}
	}

	in := m.input.GetData()
	for i, v := range vector {
		in[i] = float32(v)
	}
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("run onnx session: %w", err)
	}

	probs := m.output.GetData()
	out := make([]domain.ClassProbability, len(m.classes))
	for i, label := range m.classes {
		out[i] = domain.ClassProbability{Label: label, Probability: float64(probs[i])}
	}
	return out, nil
}

// Close releases the session and tensors. The shared runtime environment stays
// initialised for other sessions in the process.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			return fmt.Errorf("destroy onnx session: %w", err)
		}
		m.session = nil
	}
	if m.input != nil {
		_ = m.input.Destroy()
		m.input = nil
	}
	if m.output != nil {
		_ = m.output.Destroy()
		m.output = nil
	}
	return nil
}
