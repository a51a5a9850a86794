package features

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
)

func testTable() Table {
	return Table{
		domain.FieldState: {
			"Andhra Pradesh", "Assam", "Bihar", "Gujarat", "Haryana", "Himachal Pradesh",
			"Jammu and Kashmir", "Karnataka", "Kerala", "Madhya Pradesh", "Maharashtra",
			"Odisha", "Punjab", "Rajasthan", "Tamil Nadu", "Telangana", "Uttar Pradesh",
			"Uttarakhand", "West Bengal",
		},
		domain.FieldSeason:     {"Kharif", "Rabi", "Year-round", "Zaid"},
		domain.FieldSoilType:   {"Clay", "Clay-Loam", "Loam", "Sandy", "Sandy-Loam"},
		domain.FieldIrrigation: {"Drip", "Flood", "Rainfed", "Sprinkler"},
		domain.FieldFarmSize:   {"Large", "Medium", "Small"},
	}
}

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec(testTable())
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return codec
}

func TestCodecRoundTripsEveryValue(t *testing.T) {
	codec := newTestCodec(t)

	for field, values := range testTable() {
		for wantCode, value := range values {
			code, err := codec.Encode(field, value)
			if err != nil {
				t.Fatalf("Encode(%s, %q) error = %v", field, value, err)
			}
			if code != wantCode {
				t.Fatalf("Encode(%s, %q) = %d, want %d", field, value, code, wantCode)
			}
			decoded, err := codec.Decode(field, code)
			if err != nil {
				t.Fatalf("Decode(%s, %d) error = %v", field, code, err)
			}
			if decoded != value {
				t.Fatalf("Decode(Encode(%q)) = %q", value, decoded)
			}
			again, err := codec.Encode(field, decoded)
			if err != nil || again != code {
				t.Fatalf("Encode(Decode(%d)) = %d, %v", code, again, err)
			}
		}
	}
}

func TestCodecEncodeUnknownCarriesAllowedSet(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Encode(domain.FieldState, "Atlantis")
	var unknown *domain.UnknownCategoryError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownCategoryError, got %v", err)
	}
	if unknown.Field != domain.FieldState || unknown.Value != "Atlantis" {
		t.Fatalf("unexpected error context: %+v", unknown)
	}
	if diff := cmp.Diff(testTable()[domain.FieldState], unknown.Allowed); diff != "" {
		t.Fatalf("allowed set mismatch (-want +got):\n%s", diff)
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input kind, got %v", err)
	}
}

func TestCodecEncodeIsCaseSensitive(t *testing.T) {
	codec := newTestCodec(t)
	if _, err := codec.Encode(domain.FieldSeason, "kharif"); err == nil {
		t.Fatalf("expected lower-case season to be rejected")
	}
}

func TestCodecDecodeOutOfBounds(t *testing.T) {
	codec := newTestCodec(t)

	for _, code := range []int{-1, 3} {
		_, err := codec.Decode(domain.FieldFarmSize, code)
		var invalid *domain.InvalidCodeError
		if !errors.As(err, &invalid) {
			t.Fatalf("Decode(%d): expected InvalidCodeError, got %v", code, err)
		}
		if invalid.Size != 3 {
			t.Fatalf("expected size 3, got %d", invalid.Size)
		}
		if !domain.IsKind(err, domain.ErrCorruptArtifact) {
			t.Fatalf("expected corrupt artifact kind, got %v", err)
		}
	}
}

func TestNewCodecRejectsDuplicates(t *testing.T) {
	table := testTable()
	table[domain.FieldSeason] = []string{"Kharif", "Rabi", "Kharif"}

	_, err := NewCodec(table)
	if !domain.IsKind(err, domain.ErrCorruptArtifact) {
		t.Fatalf("expected corrupt artifact error, got %v", err)
	}
}

func TestNewCodecRejectsMissingAndExtraFields(t *testing.T) {
	missing := testTable()
	delete(missing, domain.FieldIrrigation)
	if _, err := NewCodec(missing); !domain.IsKind(err, domain.ErrCorruptArtifact) {
		t.Fatalf("expected error for missing field, got %v", err)
	}

	extra := testTable()
	extra["district"] = []string{"Ludhiana"}
	if _, err := NewCodec(extra); !domain.IsKind(err, domain.ErrCorruptArtifact) {
		t.Fatalf("expected error for extra field, got %v", err)
	}

	empty := testTable()
	empty[domain.FieldFarmSize] = nil
	if _, err := NewCodec(empty); !domain.IsKind(err, domain.ErrCorruptArtifact) {
		t.Fatalf("expected error for empty field, got %v", err)
	}
}

func TestCodecIsNotAliasedToInputTable(t *testing.T) {
	table := testTable()
	codec, err := NewCodec(table)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	table[domain.FieldSeason][0] = "Monsoon"
	values := codec.Values(domain.FieldSeason)
	values[1] = "Winter"

	if got, _ := codec.Decode(domain.FieldSeason, 0); got != "Kharif" {
		t.Fatalf("codec mutated through input table: %q", got)
	}
	if got, _ := codec.Decode(domain.FieldSeason, 1); got != "Rabi" {
		t.Fatalf("codec mutated through Values(): %q", got)
	}
}
