// Package forest evaluates a random forest exported from scikit-learn as JSON.
//
// Each tree is a flat node array in the exporter's layout: an internal node
// routes to left when x[feature] <= threshold and to right otherwise; a node
// whose left child is -1 is a leaf carrying per-class weights. Class
// probabilities are the per-tree normalised leaf weights averaged over trees,
// which is what RandomForestClassifier.predict_proba computes.
package forest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/artifact"
)

const leafMarker = -1

type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

func (n Node) isLeaf() bool { return n.Left == leafMarker }

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Document is the on-disk artifact layout.
type Document struct {
	Version     string   `json:"version"`
	NumFeatures int      `json:"n_features"`
	Classes     []string `json:"classes"`
	Trees       []Tree   `json:"trees"`
}

// Model is an immutable forest. It is safe for concurrent use.
type Model struct {
	version     string
	numFeatures int
	classes     []string
	trees       []tree
}

type tree struct {
	nodes  []Node
	leaves map[int][]float64
}

// Load reads and validates a forest artifact.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, "load forest", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, "load forest", err)
	}
	model, err := New(doc)
	if err != nil {
		return nil, fmt.Errorf("load forest %s: %w", path, err)
	}
	return model, nil
}

// New validates doc and precomputes normalised leaf distributions.
func New(doc Document) (*Model, error) {
	const op = "build forest"

	if doc.NumFeatures <= 0 {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op, fmt.Errorf("n_features must be positive, got %d", doc.NumFeatures))
	}
	if err := artifact.ValidateLabels(doc.Classes); err != nil {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op, err)
	}
	if len(doc.Trees) == 0 {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op, errors.New("forest has no trees"))
	}

	model := &Model{
		version:     doc.Version,
		numFeatures: doc.NumFeatures,
		classes:     append([]string(nil), doc.Classes...),
		trees:       make([]tree, 0, len(doc.Trees)),
	}
	for i, t := range doc.Trees {
		compiled, err := compileTree(t, doc.NumFeatures, len(doc.Classes))
		if err != nil {
			return nil, domain.WrapError(domain.ErrCorruptArtifact, op, fmt.Errorf("tree %d: %w", i, err))
		}
		model.trees = append(model.trees, compiled)
	}
	return model, nil
}

// compileTree checks that every child index points forward, which rules out
// cycles, and normalises each leaf to a probability distribution.
func compileTree(t Tree, numFeatures, numClasses int) (tree, error) {
	if len(t.Nodes) == 0 {
		return tree{}, errors.New("tree has no nodes")
	}

	out := tree{nodes: t.Nodes, leaves: make(map[int][]float64)}
	for i, node := range t.Nodes {
		if node.isLeaf() {
			if len(node.Value) != numClasses {
				return tree{}, fmt.Errorf("leaf %d has %d weights, expected %d", i, len(node.Value), numClasses)
			}
			if floats.Min(node.Value) < 0 {
				return tree{}, fmt.Errorf("leaf %d has a negative weight", i)
			}
			total := floats.Sum(node.Value)
			if total <= 0 {
				return tree{}, fmt.Errorf("leaf %d has no weight", i)
			}
			dist := append([]float64(nil), node.Value...)
			floats.Scale(1/total, dist)
			out.leaves[i] = dist
			continue
		}

		if node.Feature < 0 || node.Feature >= numFeatures {
			return tree{}, fmt.Errorf("node %d splits on feature %d of %d", i, node.Feature, numFeatures)
		}
		for _, child := range []int{node.Left, node.Right} {
			if child <= i || child >= len(t.Nodes) {
				return tree{}, fmt.Errorf("node %d has invalid child %d", i, child)
			}
		}
	}
	return out, nil
}

func (t tree) leaf(x []float64) []float64 {
	i := 0
	for {
		node := t.nodes[i]
		if node.isLeaf() {
			return t.leaves[i]
		}
		if x[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

func (m *Model) Version() string { return m.version }

func (m *Model) Labels() []string { return append([]string(nil), m.classes...) }

func (m *Model) NumFeatures() int { return m.numFeatures }

func (m *Model) PredictProba(ctx context.Context, vector domain.FeatureVector) ([]domain.ClassProbability, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != m.numFeatures {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, "forest predict",
			fmt.Errorf("vector has %d features, model expects %d", len(vector), m.numFeatures))
	}

	sum := make([]float64, len(m.classes))
	for _, t := range m.trees {
		floats.Add(sum, t.leaf(vector))
	}
	floats.Scale(1/float64(len(m.trees)), sum)

	out := make([]domain.ClassProbability, len(m.classes))
	for i, label := range m.classes {
		out[i] = domain.ClassProbability{Label: label, Probability: sum[i]}
	}
	return out, nil
}
