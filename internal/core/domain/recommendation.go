package domain

import (
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// MaxAlternatives is the number of ranked classes reported after the primary.
const MaxAlternatives = 3

// ClassProbability is one entry of a classifier's output distribution.
type ClassProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// CropInfo is descriptive metadata for a crop label.
type CropInfo struct {
	DisplayName  string `json:"display_name" yaml:"display_name"`
	Season       string `json:"season" yaml:"season"`
	Yield        string `json:"yield" yaml:"yield"`
	ProfitMargin string `json:"profit_margin" yaml:"profit"`
	Known        bool   `json:"known" yaml:"-"`
}

// UnknownCropInfo is the placeholder for a label with no metadata entry.
func UnknownCropInfo(label string) CropInfo {
	return CropInfo{
		DisplayName:  DisplayName(label),
		Season:       "Unknown",
		Yield:        "N/A",
		ProfitMargin: "N/A",
	}
}

// RankedCrop is a ranked class with its unrounded probability.
type RankedCrop struct {
	Label       string   `json:"label"`
	Probability float64  `json:"probability"`
	Info        CropInfo `json:"info"`
}

// Confidence is the display value of the probability.
func (c RankedCrop) Confidence() float64 {
	return RoundConfidence(c.Probability)
}

type PredictionResult struct {
	Primary      RankedCrop   `json:"primary"`
	Alternatives []RankedCrop `json:"alternatives"`
}

// Recommendation is a served prediction together with the input it was made for.
type Recommendation struct {
	ID           string           `json:"id"`
	Prediction   PredictionResult `json:"prediction"`
	Input        Sample           `json:"input"`
	ModelVersion string           `json:"model_version"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Sample is the validated, decoded form of a request.
type Sample struct {
	N           float64 `json:"N"`
	P           float64 `json:"P"`
	K           float64 `json:"K"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	PH          float64 `json:"ph"`
	Rainfall    float64 `json:"rainfall"`

	State      string `json:"state"`
	Season     string `json:"season"`
	SoilType   string `json:"soil_type"`
	Irrigation string `json:"irrigation"`
	FarmSize   string `json:"farm_size"`
}

// RoundConfidence rounds a probability to 3 decimal places.
func RoundConfidence(p float64) float64 {
	return math.Round(p*1000) / 1000
}

// DisplayName capitalises the first letter of a crop label.
func DisplayName(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return label
	}
	r, size := utf8.DecodeRuneInString(label)
	return string(unicode.ToUpper(r)) + label[size:]
}
