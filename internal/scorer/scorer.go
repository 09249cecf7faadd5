// Package scorer assigns confidence/importance to a validated
// observation: bucket defaults, optional calibration-rule adjustments,
// then the memorization threshold gate.
package scorer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/waynevaughan/cortex/internal/observation"
)

// Threshold is the memorization gate: records scoring below this
// importance are dropped silently (not quarantined).
const Threshold = 0.6

const maxCalibrationSize = 4 * 1024 // 4 KiB

// Score is the scorer's output for one observation.
type Score struct {
	Confidence float64
	Importance float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func defaults(bucket observation.Bucket) Score {
	if bucket == observation.BucketExplicit {
		return Score{Confidence: 0.9, Importance: 0.6}
	}
	return Score{Confidence: 0.7, Importance: 0.6}
}

// Rule is one calibration entry: a conjunction of field equalities that
// must all match, plus signed deltas applied to confidence/importance
// when it does.
type Rule struct {
	Match struct {
		Source string `yaml:"source"`
		Bucket string `yaml:"bucket"`
		Type   string `yaml:"type"`
	} `yaml:"match"`
	Adjust struct {
		Confidence float64 `yaml:"confidence"`
		Importance float64 `yaml:"importance"`
	} `yaml:"adjust"`
}

type calibrationFile struct {
	Rules []Rule `yaml:"rules"`
}

// Calibration is an ordered rule list loaded from calibration.yml.
type Calibration struct {
	Rules []Rule
}

// LoadCalibration reads the optional calibration file at path. A missing
// file yields an empty Calibration. A file over maxCalibrationSize is
// ignored with a returned warning rather than an error, per spec.
func LoadCalibration(path string) (Calibration, string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Calibration{}, "", nil
	}
	if err != nil {
		return Calibration{}, "", fmt.Errorf("scorer: stat calibration: %w", err)
	}
	if info.Size() > maxCalibrationSize {
		return Calibration{}, fmt.Sprintf("calibration file %s exceeds %d bytes, ignoring", path, maxCalibrationSize), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, "", fmt.Errorf("scorer: read calibration: %w", err)
	}
	var cf calibrationFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return Calibration{}, "", fmt.Errorf("scorer: parse calibration: %w", err)
	}
	return Calibration{Rules: cf.Rules}, "", nil
}

func (r Rule) matches(obs *observation.Observation) bool {
	if r.Match.Source != "" && !strings.EqualFold(r.Match.Source, obs.Attribution) {
		return false
	}
	if r.Match.Bucket != "" && r.Match.Bucket != string(obs.Bucket) {
		return false
	}
	if r.Match.Type != "" && r.Match.Type != obs.Type {
		return false
	}
	return true
}

// Apply computes the final confidence/importance for obs: defaults,
// caller-supplied overrides, calibration-rule adjustments in order, then
// a final clamp.
func Apply(obs *observation.Observation, cal Calibration) Score {
	s := defaults(obs.Bucket)
	if obs.Confidence != nil {
		s.Confidence = *obs.Confidence
	}
	if obs.Importance != nil {
		s.Importance = *obs.Importance
	}

	for _, rule := range cal.Rules {
		if !rule.matches(obs) {
			continue
		}
		s.Confidence += rule.Adjust.Confidence
		s.Importance += rule.Adjust.Importance
	}

	s.Confidence = clamp01(s.Confidence)
	s.Importance = clamp01(s.Importance)
	return s
}

// BelowThreshold reports whether s should be dropped rather than
// memorized.
func (s Score) BelowThreshold() bool {
	return s.Importance < Threshold
}
