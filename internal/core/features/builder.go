package features

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
)

// Builder turns a raw request into the feature vector the classifier was fit on.
type Builder struct {
	codec *Codec
}

func NewBuilder(codec *Codec) *Builder {
	return &Builder{codec: codec}
}

// Build validates and encodes in. Presence and numeric coercion failures stop the
// pipeline; range and category failures are all collected and joined.
func (b *Builder) Build(in domain.RawInput) (domain.FeatureVector, error) {
	if err := checkPresence(in); err != nil {
		return nil, err
	}

	numbers, err := coerceNumeric(in)
	if err != nil {
		return nil, err
	}

	var errs []error
	for i, field := range domain.NumericFields {
		if !field.Contains(numbers[i]) {
			errs = append(errs, &domain.OutOfRangeError{
				Field: field.Name,
				Value: numbers[i],
				Lo:    field.Lo,
				Hi:    field.Hi,
				Unit:  field.Unit,
			})
		}
	}

	codes := make([]int, len(domain.CategoricalFields))
	for i, name := range domain.CategoricalFields {
		code, err := b.codec.Encode(name, in.Field(name).String())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		codes[i] = code
	}

	if err := joinErrors(errs); err != nil {
		return nil, err
	}

	vector := make(domain.FeatureVector, 0, len(numbers)+len(codes))
	vector = append(vector, numbers...)
	for _, code := range codes {
		vector = append(vector, float64(code))
	}
	return vector, nil
}

// Sample decodes a vector produced by Build back into its request form.
func (b *Builder) Sample(vector domain.FeatureVector) (domain.Sample, error) {
	expected := len(domain.NumericFields) + len(domain.CategoricalFields)
	if len(vector) != expected {
		return domain.Sample{}, domain.WrapError(domain.ErrCorruptArtifact, "decode vector",
			fmt.Errorf("vector has %d features, expected %d", len(vector), expected))
	}

	offset := len(domain.NumericFields)
	values := make([]string, len(domain.CategoricalFields))
	for i, name := range domain.CategoricalFields {
		raw := vector[offset+i]
		code := int(raw)
		if float64(code) != raw {
			return domain.Sample{}, &domain.InvalidCodeError{Field: name, Code: code, Size: len(b.codec.Values(name))}
		}
		value, err := b.codec.Decode(name, code)
		if err != nil {
			return domain.Sample{}, err
		}
		values[i] = value
	}

	return domain.Sample{
		N:           vector[0],
		P:           vector[1],
		K:           vector[2],
		Temperature: vector[3],
		Humidity:    vector[4],
		PH:          vector[5],
		Rainfall:    vector[6],
		State:       values[0],
		Season:      values[1],
		SoilType:    values[2],
		Irrigation:  values[3],
		FarmSize:    values[4],
	}, nil
}

func checkPresence(in domain.RawInput) error {
	var missing []string
	for _, name := range domain.RequestFields() {
		if !in.Field(name).Present() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &domain.MissingFieldError{Fields: missing}
	}
	return nil
}

func coerceNumeric(in domain.RawInput) ([]float64, error) {
	numbers := make([]float64, len(domain.NumericFields))
	var errs []error
	for i, field := range domain.NumericFields {
		v := in.Field(field.Name)
		n, ok := parseNumber(v)
		if !ok {
			errs = append(errs, &domain.InvalidNumericValueError{Field: field.Name, RawValue: v.String()})
			continue
		}
		numbers[i] = n
	}
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return numbers, nil
}

// joinErrors keeps a lone error unwrapped so callers can type-assert it directly.
func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}

func parseNumber(v domain.RawValue) (float64, bool) {
	n := v.Number()
	if !v.IsNumber() {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
