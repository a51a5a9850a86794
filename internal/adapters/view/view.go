// Package view renders recommendations and errors into the JSON shapes shared by
// the HTTP and tool adapters.
package view

import (
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
)

const (
	primaryReason     = "Optimal soil and climate conditions for %s"
	alternativeReason = "Good alternative with favorable conditions"
)

type Alternative struct {
	Crop         string  `json:"crop"`
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
	Season       string  `json:"season"`
	Yield        string  `json:"yield"`
	Profit       string  `json:"profit"`
	KnownProfile bool    `json:"known_profile"`
}

type Prediction struct {
	Crop          string        `json:"crop"`
	Label         string        `json:"label"`
	Confidence    float64       `json:"confidence"`
	Season        string        `json:"season"`
	YieldEstimate string        `json:"yield_estimate"`
	ProfitMargin  string        `json:"profit_margin"`
	KnownProfile  bool          `json:"known_profile"`
	Alternatives  []Alternative `json:"alternatives"`
}

// FlatRecommendation is one row of the list a form renders directly.
type FlatRecommendation struct {
	Crop          string  `json:"crop"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
	Season        string  `json:"season"`
	ExpectedYield string  `json:"expectedYield"`
	ProfitMargin  string  `json:"profitMargin"`
}

type Recommendation struct {
	Success         bool                 `json:"success"`
	ID              string               `json:"id"`
	Prediction      Prediction           `json:"prediction"`
	Recommendations []FlatRecommendation `json:"recommendations"`
	Input           domain.Sample        `json:"input"`
	ModelVersion    string               `json:"model_version,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
}

// NewRecommendation renders rec. Flat entries at or below minConfidence are
// dropped; the prediction block is always complete.
func NewRecommendation(rec *domain.Recommendation, minConfidence float64) Recommendation {
	primary := rec.Prediction.Primary
	out := Recommendation{
		Success: true,
		ID:      rec.ID,
		Prediction: Prediction{
			Crop:          cropName(primary),
			Label:         primary.Label,
			Confidence:    primary.Confidence(),
			Season:        primary.Info.Season,
			YieldEstimate: primary.Info.Yield,
			ProfitMargin:  primary.Info.ProfitMargin,
			KnownProfile:  primary.Info.Known,
			Alternatives:  make([]Alternative, 0, len(rec.Prediction.Alternatives)),
		},
		Recommendations: make([]FlatRecommendation, 0, 1+len(rec.Prediction.Alternatives)),
		Input:           rec.Input,
		ModelVersion:    rec.ModelVersion,
		Timestamp:       rec.CreatedAt,
	}

	if primary.Confidence() > minConfidence {
		out.Recommendations = append(out.Recommendations, flat(primary, fmt.Sprintf(primaryReason, cropName(primary))))
	}
	for _, alt := range rec.Prediction.Alternatives {
		out.Prediction.Alternatives = append(out.Prediction.Alternatives, Alternative{
			Crop:         cropName(alt),
			Label:        alt.Label,
			Confidence:   alt.Confidence(),
			Season:       alt.Info.Season,
			Yield:        alt.Info.Yield,
			Profit:       alt.Info.ProfitMargin,
			KnownProfile: alt.Info.Known,
		})
		if alt.Confidence() > minConfidence {
			out.Recommendations = append(out.Recommendations, flat(alt, alternativeReason))
		}
	}
	return out
}

func flat(c domain.RankedCrop, reason string) FlatRecommendation {
	return FlatRecommendation{
		Crop:          cropName(c),
		Confidence:    c.Confidence(),
		Reason:        reason,
		Season:        c.Info.Season,
		ExpectedYield: c.Info.Yield,
		ProfitMargin:  c.Info.ProfitMargin,
	}
}

func cropName(c domain.RankedCrop) string {
	if c.Info.DisplayName != "" {
		return c.Info.DisplayName
	}
	return domain.DisplayName(c.Label)
}

const (
	KindInvalidInput     = "invalid_input"
	KindInvalidJSON      = "invalid_json"
	KindPayloadTooLarge  = "payload_too_large"
	KindModelUnavailable = "model_unavailable"
	KindCorruptArtifact  = "corrupt_artifact"
	KindNotFound         = "not_found"
	KindTemporary        = "temporary"
	KindInternal         = "internal"
)

// Detail is one structured error. Only the fields meaningful for Kind are set.
type Detail struct {
	Kind     domain.ErrorKind `json:"kind"`
	Message  string           `json:"message"`
	Field    string           `json:"field,omitempty"`
	Fields   []string         `json:"fields,omitempty"`
	Value    any              `json:"value,omitempty"`
	RawValue string           `json:"raw_value,omitempty"`
	Lo       *float64         `json:"lo,omitempty"`
	Hi       *float64         `json:"hi,omitempty"`
	Unit     string           `json:"unit,omitempty"`
	Allowed  []string         `json:"allowed,omitempty"`
}

type Error struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Kind    string   `json:"kind"`
	Details []Detail `json:"details,omitempty"`
}

func NewError(err error) Error {
	out := Error{
		Error: domain.ErrorText(err),
		Kind:  Kind(err),
	}
	for _, kinded := range domain.KindedErrors(err) {
		out.Details = append(out.Details, NewDetail(kinded))
	}
	return out
}

// NewMessageError is an error body for failures raised by the transport itself.
func NewMessageError(kind, message string) Error {
	return Error{Error: message, Kind: kind}
}

// Kind names the error category a client branches on.
func Kind(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return KindInvalidInput
	case domain.IsKind(err, domain.ErrModelUnavailable):
		return KindModelUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return KindTemporary
	case domain.IsKind(err, domain.ErrCorruptArtifact):
		return KindCorruptArtifact
	case domain.IsKind(err, domain.ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

func NewDetail(err domain.KindedError) Detail {
	d := Detail{Kind: err.Kind(), Message: err.Error()}

	var (
		missing    *domain.MissingFieldError
		duplicate  *domain.DuplicateFieldError
		numeric    *domain.InvalidNumericValueError
		outOfRange *domain.OutOfRangeError
		category   *domain.UnknownCategoryError
		code       *domain.InvalidCodeError
	)
	switch {
	case errors.As(err, &missing):
		d.Fields = missing.Fields
	case errors.As(err, &duplicate):
		d.Field = duplicate.Field
	case errors.As(err, &numeric):
		d.Field = numeric.Field
		d.RawValue = numeric.RawValue
	case errors.As(err, &outOfRange):
		lo, hi := outOfRange.Lo, outOfRange.Hi
		d.Field = outOfRange.Field
		d.Value = outOfRange.Value
		d.Lo = &lo
		d.Hi = &hi
		d.Unit = outOfRange.Unit
	case errors.As(err, &category):
		d.Field = category.Field
		d.Value = category.Value
		d.Allowed = category.Allowed
	case errors.As(err, &code):
		d.Field = code.Field
		d.Value = code.Code
	}
	return d
}
