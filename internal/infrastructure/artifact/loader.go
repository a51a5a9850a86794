// Package artifact reads the files a training run leaves behind: the feature
// order manifest, the categorical codec table and the class label list.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/core/features"
)

// Resolve joins a relative artifact path onto dir. Absolute paths are returned as is.
func Resolve(dir, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// LoadManifest reads the feature order written at training time and verifies it
// against the serving order. Both a bare JSON array and {"version","features"}
// are accepted.
func LoadManifest(path string) (features.Manifest, error) {
	const op = "load manifest"

	data, err := readArtifact(op, path)
	if err != nil {
		return features.Manifest{}, err
	}

	var manifest features.Manifest
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &manifest.Features); err != nil {
			return features.Manifest{}, domain.WrapError(domain.ErrCorruptArtifact, op, err)
		}
	} else {
		var doc struct {
			Version  string   `json:"version"`
			Features []string `json:"features"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return features.Manifest{}, domain.WrapError(domain.ErrCorruptArtifact, op, err)
		}
		manifest = features.Manifest{Version: doc.Version, Features: doc.Features}
	}

	if err := manifest.Verify(); err != nil {
		return features.Manifest{}, fmt.Errorf("%s %s: %w", op, path, err)
	}
	return manifest, nil
}

// LoadCodec reads a {field: [values...]} table and builds the codec from it.
func LoadCodec(path string) (*features.Codec, error) {
	const op = "load codec"

	data, err := readArtifact(op, path)
	if err != nil {
		return nil, err
	}

	var table features.Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op, err)
	}
	codec, err := features.NewCodec(table)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, path, err)
	}
	return codec, nil
}

// LoadClasses reads the class labels in model output order.
func LoadClasses(path string) ([]string, error) {
	const op = "load classes"

	data, err := readArtifact(op, path)
	if err != nil {
		return nil, err
	}

	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op, err)
	}
	if err := ValidateLabels(labels); err != nil {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op, err)
	}
	return labels, nil
}

// ValidateLabels rejects empty label lists, blank labels and duplicates.
func ValidateLabels(labels []string) error {
	if len(labels) == 0 {
		return errors.New("class list is empty")
	}
	seen := make(map[string]struct{}, len(labels))
	for i, label := range labels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("class %d has an empty label", i)
		}
		if _, dup := seen[label]; dup {
			return fmt.Errorf("class %q is listed twice", label)
		}
		seen[label] = struct{}{}
	}
	return nil
}

func readArtifact(op, path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op, errors.New("path is empty"))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCorruptArtifact, op, err)
	}
	return data, nil
}
