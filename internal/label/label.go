// Package label builds the JSON label record written once per capture run.
package label

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FastenerType is the kind of item on the fixture.
type FastenerType string

const (
	Screw  FastenerType = "screw"
	Washer FastenerType = "washer"
	Nut    FastenerType = "nut"
)

// Types lists the fastener types in display order.
var Types = []FastenerType{Screw, Washer, Nut}

// MeasurementSystem selects metric (mm) or imperial (inch) dimensions.
type MeasurementSystem string

const (
	Metric   MeasurementSystem = "metric"
	Imperial MeasurementSystem = "imperial"
)

// StatusCaptured marks a record whose images have not been reviewed yet.
const StatusCaptured = "captured"

// Field describes one attribute of a fastener type.
type Field struct {
	Key string
	// Dimension fields are parsed as numbers; imperial dimensions accept
	// fractions and snap to 1/32 inch.
	Dimension bool
	// Numeric fields are plain numbers, such as threads per inch.
	Numeric bool
}

var fields = map[FastenerType][]Field{
	Screw: {
		{Key: "length", Dimension: true},
		{Key: "diameter", Dimension: true},
		{Key: "thread_pitch", Numeric: true},
		{Key: "head_type"},
		{Key: "drive_type"},
		{Key: "finish"},
	},
	Washer: {
		{Key: "inner_diameter", Dimension: true},
		{Key: "outer_diameter", Dimension: true},
		{Key: "thickness", Dimension: true},
		{Key: "washer_type"},
		{Key: "finish"},
	},
	Nut: {
		{Key: "diameter", Dimension: true},
		{Key: "thread_pitch", Numeric: true},
		{Key: "width_across_flats", Dimension: true},
		{Key: "nut_type"},
		{Key: "finish"},
	},
}

// Fields returns the attribute fields for a fastener type, or nil if the
// type is unknown.
func Fields(t FastenerType) []Field {
	return fields[t]
}

// Input is what the operator supplies for a run.
type Input struct {
	Type       FastenerType      `json:"fastener_type"`
	System     MeasurementSystem `json:"measurement_system"`
	Attributes map[string]string `json:"attributes"`
}

// Station is the fixed metadata of the imaging platform.
type Station struct {
	Version       string
	Configuration string
}

// Record is the label document stored as <run_dir>/<run_id>.json.
type Record struct {
	UUID                  string            `json:"uuid"`
	Status                string            `json:"status"`
	PlatformVersion       string            `json:"platform_version"`
	PlatformConfiguration string            `json:"platform_configuration"`
	Time                  string            `json:"time"`
	FastenerType          FastenerType      `json:"fastener_type"`
	MeasurementSystem     MeasurementSystem `json:"measurement_system"`
	TopDownIncluded       bool              `json:"topdown_included"`
	SideOnIncluded        bool              `json:"sideon_included"`
	NumberSideOn          int               `json:"number_sideon"`
	Attributes            Attributes        `json:"attributes"`
}

// Attributes is the ordered, type-specific attribute object.
type Attributes struct {
	keys   []string
	values map[string]interface{}
}

// Get returns the value stored for key.
func (a Attributes) Get(key string) (interface{}, bool) {
	v, ok := a.values[key]
	return v, ok
}

// MarshalJSON writes the attributes in schema order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, err := json.Marshal(a.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// UnmarshalJSON reads an attribute object; key order follows sorted keys.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	a.values = m
	a.keys = a.keys[:0]
	for k := range m {
		a.keys = append(a.keys, k)
	}
	sort.Strings(a.keys)
	return nil
}

// Build validates in and assembles the label record for a run of shots
// frames (one top-down, the rest side-on).
func Build(id string, in Input, st Station, shots int, now time.Time) (Record, error) {
	schema := Fields(in.Type)
	if schema == nil {
		return Record{}, fmt.Errorf("unknown fastener type %q", in.Type)
	}
	switch in.System {
	case Metric, Imperial:
	case "":
		in.System = Metric
	default:
		return Record{}, fmt.Errorf("unknown measurement system %q", in.System)
	}
	if shots < 1 {
		return Record{}, fmt.Errorf("shot count must be at least 1, got %d", shots)
	}

	known := make(map[string]bool, len(schema))
	for _, f := range schema {
		known[f.Key] = true
	}
	for k := range in.Attributes {
		if !known[k] {
			return Record{}, fmt.Errorf("attribute %q does not apply to a %s", k, in.Type)
		}
	}

	attrs := Attributes{values: make(map[string]interface{}, len(schema))}
	for _, f := range schema {
		raw := strings.TrimSpace(in.Attributes[f.Key])
		attrs.keys = append(attrs.keys, f.Key)
		switch {
		case f.Dimension:
			v, err := ParseDimension(raw, in.System)
			if err != nil {
				return Record{}, fmt.Errorf("%s: %w", f.Key, err)
			}
			attrs.values[f.Key] = v
		case f.Numeric:
			v, err := parseNumber(raw)
			if err != nil {
				return Record{}, fmt.Errorf("%s: %w", f.Key, err)
			}
			attrs.values[f.Key] = v
		default:
			attrs.values[f.Key] = raw
		}
	}

	return Record{
		UUID:                  id,
		Status:                StatusCaptured,
		PlatformVersion:       st.Version,
		PlatformConfiguration: st.Configuration,
		Time:                  now.UTC().Format(time.RFC3339),
		FastenerType:          in.Type,
		MeasurementSystem:     in.System,
		TopDownIncluded:       true,
		SideOnIncluded:        shots > 1,
		NumberSideOn:          shots - 1,
		Attributes:            attrs,
	}, nil
}

// ParseDimension parses a length. Imperial values may be fractions such as
// "5/32" or "1 1/4" and are rounded to the nearest 1/32 inch. Empty input
// is zero.
func ParseDimension(s string, system MeasurementSystem) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if system != Imperial {
		return parseNumber(s)
	}

	var whole float64
	if parts := strings.Fields(s); len(parts) == 2 {
		w, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid dimension %q", s)
		}
		whole, s = w, parts[1]
	}

	var v float64
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, err2 := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err1 != nil || err2 != nil {
			return 0, fmt.Errorf("invalid fraction %q", s)
		}
		if d == 0 {
			return 0, fmt.Errorf("zero denominator in %q", s)
		}
		v = n / d
	} else {
		n, err := parseNumber(s)
		if err != nil {
			return 0, err
		}
		v = n
	}
	return math.Round((whole+v)*32) / 32, nil
}

// FormatFraction renders an inch value as a fraction of 32nds, reduced.
func FormatFraction(v float64) string {
	n := int(math.Round(v * 32))
	d := 32
	for d > 1 && n%2 == 0 {
		n /= 2
		d /= 2
	}
	if d == 1 {
		return strconv.Itoa(n)
	}
	return fmt.Sprintf("%d/%d", n, d)
}

func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}
