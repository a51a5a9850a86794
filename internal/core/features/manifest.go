package features

import (
	"fmt"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
)

// Manifest is the feature order the classifier was fit on.
type Manifest struct {
	Version  string   `json:"version,omitempty"`
	Features []string `json:"features"`
}

// ManifestMismatchError reports the first position where a manifest disagrees
// with the serving feature order.
type ManifestMismatchError struct {
	Position int
	Expected string
	Got      string
}

func (e *ManifestMismatchError) Error() string {
	return fmt.Sprintf("feature %d: expected %q, manifest has %q", e.Position, e.Expected, e.Got)
}

func (e *ManifestMismatchError) Is(target error) bool { return target == domain.ErrCorruptArtifact }

// Verify checks the manifest against domain.FeatureOrder. Any drift means the
// model would silently receive misaligned vectors, so callers must refuse to serve.
func (m Manifest) Verify() error {
	expected := domain.FeatureOrder()
	if len(m.Features) != len(expected) {
		return domain.WrapError(domain.ErrCorruptArtifact, "verify manifest",
			fmt.Errorf("manifest lists %d features, serving builds %d", len(m.Features), len(expected)))
	}
	for i, name := range expected {
		if m.Features[i] != name {
			return &ManifestMismatchError{Position: i, Expected: name, Got: m.Features[i]}
		}
	}
	return nil
}
