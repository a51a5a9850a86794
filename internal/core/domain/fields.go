package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
)

const (
	FieldN           = "N"
	FieldP           = "P"
	FieldK           = "K"
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldPH          = "ph"
	FieldRainfall    = "rainfall"

	FieldState      = "state"
	FieldSeason     = "season"
	FieldSoilType   = "soil_type"
	FieldIrrigation = "irrigation"
	FieldFarmSize   = "farm_size"
)

// NumericField describes a measured input and its inclusive valid range.
type NumericField struct {
	Name string  `json:"name"`
	Lo   float64 `json:"lo"`
	Hi   float64 `json:"hi"`
	Unit string  `json:"unit,omitempty"`
}

func (f NumericField) Contains(v float64) bool {
	return v >= f.Lo && v <= f.Hi
}

// NumericFields is the declared numeric order of the feature vector.
var NumericFields = []NumericField{
	{Name: FieldN, Lo: 0, Hi: 140, Unit: "kg/ha"},
	{Name: FieldP, Lo: 5, Hi: 145, Unit: "kg/ha"},
	{Name: FieldK, Lo: 5, Hi: 205, Unit: "kg/ha"},
	{Name: FieldTemperature, Lo: 8, Hi: 43, Unit: "°C"},
	{Name: FieldHumidity, Lo: 14, Hi: 99, Unit: "%"},
	{Name: FieldPH, Lo: 3.5, Hi: 9.9},
	{Name: FieldRainfall, Lo: 20, Hi: 300, Unit: "mm"},
}

// CategoricalFields is the declared categorical order of the feature vector.
var CategoricalFields = []string{
	FieldState,
	FieldSeason,
	FieldSoilType,
	FieldIrrigation,
	FieldFarmSize,
}

// EncodedSuffix marks categorical columns in the feature manifest.
const EncodedSuffix = "_encoded"

// FeatureOrder returns the feature names in vector assembly order, as the
// training job writes them to the manifest.
func FeatureOrder() []string {
	out := make([]string, 0, len(NumericFields)+len(CategoricalFields))
	for _, f := range NumericFields {
		out = append(out, f.Name)
	}
	for _, name := range CategoricalFields {
		out = append(out, name+EncodedSuffix)
	}
	return out
}

// RequestFields returns every request field name in declared order.
func RequestFields() []string {
	out := make([]string, 0, len(NumericFields)+len(CategoricalFields))
	for _, f := range NumericFields {
		out = append(out, f.Name)
	}
	return append(out, CategoricalFields...)
}

// FeatureVector is the fixed-order numeric input handed to the classifier.
type FeatureVector []float64

// RawValue is a client-supplied field value before coercion.
type RawValue struct {
	text     string
	number   float64
	isNumber bool
	present  bool
}

func TextValue(s string) RawValue {
	return RawValue{text: s, present: true}
}

func NumberValue(v float64) RawValue {
	return RawValue{number: v, isNumber: true, present: true}
}

func (v RawValue) Present() bool { return v.present }

func (v RawValue) IsNumber() bool { return v.isNumber }

func (v RawValue) Number() float64 { return v.number }

// String renders the value as the client sent it.
func (v RawValue) String() string {
	if v.isNumber {
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	}
	return v.text
}

// UnmarshalJSON accepts numbers and strings; null leaves the value absent.
func (v *RawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = RawValue{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TextValue(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		// Booleans, objects and arrays are kept as text so coercion reports them.
		*v = TextValue(string(data))
		return nil
	}
	*v = NumberValue(n)
	return nil
}

func (v RawValue) MarshalJSON() ([]byte, error) {
	switch {
	case !v.present:
		return []byte("null"), nil
	case v.isNumber:
		return json.Marshal(v.number)
	default:
		return json.Marshal(v.text)
	}
}

// RawInput is the typed request record validated field by field by the builder.
type RawInput struct {
	N           RawValue `json:"N"`
	P           RawValue `json:"P"`
	K           RawValue `json:"K"`
	Temperature RawValue `json:"temperature"`
	Humidity    RawValue `json:"humidity"`
	PH          RawValue `json:"ph"`
	Rainfall    RawValue `json:"rainfall"`

	State      RawValue `json:"state"`
	Season     RawValue `json:"season"`
	SoilType   RawValue `json:"soil_type"`
	Irrigation RawValue `json:"irrigation"`
	FarmSize   RawValue `json:"farm_size"`
}

// UnmarshalJSON decodes a JSON object whose keys match request field names
// exactly. Other keys are ignored, so "n" leaves N missing. A request field given
// twice is a DuplicateFieldError. null decodes to an empty record.
func (in *RawInput) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*in = RawInput{}
		return expectEOF(dec)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("request record must be a JSON object")
	}

	var out RawInput
	fields := RequestFields()
	seen := make(map[string]bool, len(fields))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if !slices.Contains(fields, key) {
			continue
		}
		if seen[key] {
			return &DuplicateFieldError{Field: key}
		}
		seen[key] = true

		var v RawValue
		if err := v.UnmarshalJSON(raw); err != nil {
			return err
		}
		if err := out.Set(key, v); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if err := expectEOF(dec); err != nil {
		return err
	}
	*in = out
	return nil
}

func expectEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after request record")
	}
	return nil
}

// Field returns the value of the named request field.
func (in RawInput) Field(name string) RawValue {
	switch name {
	case FieldN:
		return in.N
	case FieldP:
		return in.P
	case FieldK:
		return in.K
	case FieldTemperature:
		return in.Temperature
	case FieldHumidity:
		return in.Humidity
	case FieldPH:
		return in.PH
	case FieldRainfall:
		return in.Rainfall
	case FieldState:
		return in.State
	case FieldSeason:
		return in.Season
	case FieldSoilType:
		return in.SoilType
	case FieldIrrigation:
		return in.Irrigation
	case FieldFarmSize:
		return in.FarmSize
	default:
		return RawValue{}
	}
}

// Set assigns the named request field. Unknown names are rejected.
func (in *RawInput) Set(name string, v RawValue) error {
	switch name {
	case FieldN:
		in.N = v
	case FieldP:
		in.P = v
	case FieldK:
		in.K = v
	case FieldTemperature:
		in.Temperature = v
	case FieldHumidity:
		in.Humidity = v
	case FieldPH:
		in.PH = v
	case FieldRainfall:
		in.Rainfall = v
	case FieldState:
		in.State = v
	case FieldSeason:
		in.Season = v
	case FieldSoilType:
		in.SoilType = v
	case FieldIrrigation:
		in.Irrigation = v
	case FieldFarmSize:
		in.FarmSize = v
	default:
		return fmt.Errorf("unknown field %q", name)
	}
	return nil
}

// RawInputFromMap converts a loosely typed payload (tool arguments, sheet rows)
// into a RawInput. Keys that are not request fields are ignored.
func RawInputFromMap(values map[string]any) RawInput {
	var in RawInput
	for _, name := range RequestFields() {
		raw, ok := values[name]
		if !ok || raw == nil {
			continue
		}
		var v RawValue
		switch typed := raw.(type) {
		case string:
			v = TextValue(typed)
		case float64:
			v = NumberValue(typed)
		case float32:
			v = NumberValue(float64(typed))
		case int:
			v = NumberValue(float64(typed))
		case int64:
			v = NumberValue(float64(typed))
		case json.Number:
			v = TextValue(typed.String())
		default:
			v = TextValue(fmt.Sprint(typed))
		}
		_ = in.Set(name, v)
	}
	return in
}
