package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/core/features"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadManifestAcceptsTrainingArray(t *testing.T) {
	manifest, err := LoadManifest(filepath.Join("testdata", "feature_names.json"))
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if diff := cmp.Diff(domain.FeatureOrder(), manifest.Features); diff != "" {
		t.Fatalf("features mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadManifestAcceptsVersionedObject(t *testing.T) {
	path := writeFile(t, "manifest.json", `{"version":"rf-2024.1","features":["N","P","K","temperature","humidity","ph","rainfall","state_encoded","season_encoded","soil_type_encoded","irrigation_encoded","farm_size_encoded"]}`)

	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if manifest.Version != "rf-2024.1" {
		t.Fatalf("expected version rf-2024.1, got %q", manifest.Version)
	}
}

func TestLoadManifestRejectsReorderedFeatures(t *testing.T) {
	path := writeFile(t, "manifest.json", `["P","N","K","temperature","humidity","ph","rainfall","state_encoded","season_encoded","soil_type_encoded","irrigation_encoded","farm_size_encoded"]`)

	_, err := LoadManifest(path)
	var mismatch *features.ManifestMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ManifestMismatchError, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrCorruptArtifact) {
		t.Fatalf("expected corrupt artifact kind, got %v", err)
	}
}

func TestLoadManifestRejectsMissingAndMalformedFiles(t *testing.T) {
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "absent.json")); !domain.IsKind(err, domain.ErrCorruptArtifact) {
		t.Fatalf("expected corrupt artifact for missing file, got %v", err)
	}
	if _, err := LoadManifest(writeFile(t, "bad.json", `{"features":`)); !domain.IsKind(err, domain.ErrCorruptArtifact) {
		t.Fatalf("expected corrupt artifact for malformed file, got %v", err)
	}
	if _, err := LoadManifest(""); !domain.IsKind(err, domain.ErrCorruptArtifact) {
		t.Fatalf("expected corrupt artifact for empty path, got %v", err)
	}
}

func TestLoadCodecReadsLabelEncoders(t *testing.T) {
	codec, err := LoadCodec(filepath.Join("testdata", "label_encoders.json"))
	if err != nil {
		t.Fatalf("LoadCodec() error = %v", err)
	}

	for field, want := range map[string]struct {
		value string
		code  int
	}{
		domain.FieldState:      {"Punjab", 12},
		domain.FieldSeason:     {"Kharif", 0},
		domain.FieldSoilType:   {"Clay", 0},
		domain.FieldIrrigation: {"Flood", 1},
		domain.FieldFarmSize:   {"Medium", 1},
	} {
		code, err := codec.Encode(field, want.value)
		if err != nil {
			t.Fatalf("Encode(%s, %s) error = %v", field, want.value, err)
		}
		if code != want.code {
			t.Fatalf("Encode(%s, %s) = %d, want %d", field, want.value, code, want.code)
		}
	}
}

func TestLoadCodecRejectsDuplicateValues(t *testing.T) {
	path := writeFile(t, "label_encoders.json", `{
		"state": ["Punjab", "Punjab"],
		"season": ["Kharif"],
		"soil_type": ["Clay"],
		"irrigation": ["Flood"],
		"farm_size": ["Medium"]
	}`)
	if _, err := LoadCodec(path); !domain.IsKind(err, domain.ErrCorruptArtifact) {
		t.Fatalf("expected corrupt artifact, got %v", err)
	}
}

func TestLoadCodecRejectsMissingField(t *testing.T) {
	path := writeFile(t, "label_encoders.json", `{"state": ["Punjab"], "season": ["Kharif"]}`)
	if _, err := LoadCodec(path); !domain.IsKind(err, domain.ErrCorruptArtifact) {
		t.Fatalf("expected corrupt artifact, got %v", err)
	}
}

func TestLoadClasses(t *testing.T) {
	labels, err := LoadClasses(filepath.Join("testdata", "classes.json"))
	if err != nil {
		t.Fatalf("LoadClasses() error = %v", err)
	}
	if len(labels) != 22 || labels[20] != "rice" {
		t.Fatalf("unexpected labels: %v", labels)
	}

	for name, content := range map[string]string{
		"empty":     `[]`,
		"blank":     `["rice", " "]`,
		"duplicate": `["rice", "maize", "rice"]`,
		"object":    `{"rice": 1}`,
	} {
		if _, err := LoadClasses(writeFile(t, "classes.json", content)); !domain.IsKind(err, domain.ErrCorruptArtifact) {
			t.Fatalf("%s: expected corrupt artifact, got %v", name, err)
		}
	}
}

func TestResolve(t *testing.T) {
	abs := filepath.Join(string(filepath.Separator), "models", "crop.onnx")
	cases := []struct{ dir, path, want string }{
		{"artifacts", "crop_model.json", filepath.Join("artifacts", "crop_model.json")},
		{"artifacts", abs, abs},
		{"", "crop_model.json", "crop_model.json"},
		{"artifacts", "  ", ""},
	}
	for _, tc := range cases {
		if got := Resolve(tc.dir, tc.path); got != tc.want {
			t.Fatalf("Resolve(%q, %q) = %q, want %q", tc.dir, tc.path, got, tc.want)
		}
	}
}
