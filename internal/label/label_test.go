package label

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

var station = Station{Version: "1.0", Configuration: "dome-backlight"}

func TestBuildRecordFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	rec, err := Build("run-1", Input{
		Type:       Screw,
		System:     Metric,
		Attributes: map[string]string{"length": "12", "diameter": "3", "thread_pitch": "0.5", "head_type": "pan"},
	}, station, 9, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var doc map[string]interface{}
	json.Unmarshal(data, &doc)

	for _, key := range []string{"uuid", "status", "platform_version", "platform_configuration", "time",
		"fastener_type", "measurement_system", "topdown_included", "sideon_included", "number_sideon", "attributes"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing %s in %s", key, data)
		}
	}
	if doc["uuid"] != "run-1" || doc["time"] != "2026-03-01T12:30:00Z" {
		t.Errorf("unexpected identity fields: %s", data)
	}
	if doc["number_sideon"].(float64) != 8 || doc["sideon_included"] != true {
		t.Errorf("expected 8 side-on shots: %s", data)
	}
}

func TestAttributeShapesDifferByType(t *testing.T) {
	tests := []struct {
		typ  FastenerType
		want string
	}{
		{Screw, `{"length":0,"diameter":0,"thread_pitch":0,"head_type":"","drive_type":"","finish":""}`},
		{Washer, `{"inner_diameter":0,"outer_diameter":0,"thickness":0,"washer_type":"","finish":""}`},
		{Nut, `{"diameter":0,"thread_pitch":0,"width_across_flats":0,"nut_type":"","finish":""}`},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			rec, err := Build("id", Input{Type: tt.typ}, station, 1, time.Now())
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			got, _ := json.Marshal(rec.Attributes)
			if string(got) != tt.want {
				t.Fatalf("attributes = %s, want %s", got, tt.want)
			}
			if rec.SideOnIncluded || rec.NumberSideOn != 0 {
				t.Fatalf("single-shot run should have no side-on shots: %+v", rec)
			}
		})
	}
}

func TestBuildRejects(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"unknown type", Input{Type: "rivet"}},
		{"unknown system", Input{Type: Nut, System: "cubits"}},
		{"foreign attribute", Input{Type: Washer, Attributes: map[string]string{"length": "3"}}},
		{"bad dimension", Input{Type: Screw, Attributes: map[string]string{"length": "long"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build("id", tt.in, station, 3, time.Now()); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestParseDimensionImperial(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"5/32", 5.0 / 32},
		{"1 1/4", 1.25},
		{"0.26", 0.25}, // nearest 1/32 is 8/32
		{"3", 3},
		{"", 0},
	}
	for _, tt := range tests {
		got, err := ParseDimension(tt.in, Imperial)
		if err != nil {
			t.Errorf("ParseDimension(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDimension(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseDimension("1/0", Imperial); err == nil || !strings.Contains(err.Error(), "zero denominator") {
		t.Errorf("expected zero denominator error, got %v", err)
	}
}

func TestParseDimensionMetricKeepsDecimals(t *testing.T) {
	got, err := ParseDimension("2.45", Metric)
	if err != nil || got != 2.45 {
		t.Fatalf("expected 2.45, got %v (%v)", got, err)
	}
	if _, err := ParseDimension("3/4", Metric); err == nil {
		t.Fatal("metric dimensions should not accept fractions")
	}
}

func TestFormatFraction(t *testing.T) {
	tests := map[float64]string{0.5: "1/2", 5.0 / 32: "5/32", 2: "2", 1.25: "5/4"}
	for in, want := range tests {
		if got := FormatFraction(in); got != want {
			t.Errorf("FormatFraction(%v) = %s, want %s", in, got, want)
		}
	}
}
