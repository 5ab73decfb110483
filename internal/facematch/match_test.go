package facematch

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/kozaktomas/vface/internal/database"
)

func testGallery() []database.IdentityRecord {
	return []database.IdentityRecord{
		{IdentityID: "u1", Metadata: "Alice", Vector: []float64{0.9, 0.1, 0.3}},
		{IdentityID: "u2", Metadata: "Bob", Vector: []float64{0.1, 0.2, 0.3}},
		{IdentityID: "u3", Metadata: "Carol", Vector: []float64{-0.5, 0.7, 0.0}},
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		expected float64
	}{
		{"identical", 0, 100},
		{"saturated", 0.2, 100},
		{"close", 0.3, 99.301},
		{"mid", 0.4, 96.764},
		{"near cutoff", 0.5, 90.92},
		{"cutoff", MatchCutoff, 50},
		{"above cutoff", 0.7, 37.5},
		{"far", 0.8, 25},
		{"unit", 1.0, 0},
		{"beyond unit", 1.5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Confidence(tt.distance)
			if math.Abs(result-tt.expected) > 0.0005 {
				t.Errorf("Confidence(%v) = %v, want %v", tt.distance, result, tt.expected)
			}
		})
	}
}

func TestConfidence_Monotonic(t *testing.T) {
	prev := Confidence(0)
	for d := 0.001; d <= 2.0; d += 0.001 {
		c := Confidence(d)
		if c > prev {
			t.Fatalf("Confidence(%v) = %v exceeds Confidence(%v) = %v", d, c, d-0.001, prev)
		}
		if c < 0 || c > 100 {
			t.Fatalf("Confidence(%v) = %v outside [0, 100]", d, c)
		}
		prev = c
	}
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 0},
		{"3-4-5", []float64{0, 0}, []float64{3, 4}, 5},
		{"single", []float64{0}, []float64{0.6}, 0.6},
		{"length mismatch", []float64{1, 2}, []float64{1}, math.Inf(1)},
		{"empty", nil, nil, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EuclideanDistance(tt.a, tt.b)
			if math.IsInf(tt.expected, 1) {
				if !math.IsInf(result, 1) {
					t.Errorf("EuclideanDistance(%v, %v) = %v, want +Inf", tt.a, tt.b, result)
				}
				return
			}
			if math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("EuclideanDistance(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestNearest_TieKeepsFirst(t *testing.T) {
	gallery := []database.IdentityRecord{
		{IdentityID: "a", Vector: []float64{1, 0}},
		{IdentityID: "b", Vector: []float64{-1, 0}},
	}
	idx, d, ok := Nearest(gallery, []float64{0, 0})
	if !ok || idx != 0 || d != 1 {
		t.Errorf("Nearest() = %d, %v, %v; want 0, 1, true", idx, d, ok)
	}
}

func TestNearest_SkipsMismatchedDimensions(t *testing.T) {
	gallery := []database.IdentityRecord{
		{IdentityID: "short", Vector: []float64{0}},
		{IdentityID: "ok", Vector: []float64{0.3, 0.3}},
	}
	idx, _, ok := Nearest(gallery, []float64{0.3, 0.3})
	if !ok || idx != 1 {
		t.Errorf("Nearest() = %d, %v; want 1, true", idx, ok)
	}

	_, _, ok = Nearest(gallery[:1], []float64{0.3, 0.3})
	if ok {
		t.Error("Nearest() over incomparable gallery should not be ok")
	}
}

// Query identical to the second identity yields exactly that identity at 100.
func TestMatch_IdenticalVector(t *testing.T) {
	gallery := testGallery()
	result, err := Match(gallery, [][]float64{{0.1, 0.2, 0.3}}, 0.9)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	want := []Candidate{{IdentityID: "u2", Confidence: 100, Metadata: "Bob"}}
	if !reflect.DeepEqual(result, want) {
		t.Errorf("Match() = %+v, want %+v", result, want)
	}
}

func TestMatch_CutoffIsInclusive(t *testing.T) {
	gallery := []database.IdentityRecord{{IdentityID: "edge", Vector: []float64{0.6}}}

	result, err := Match(gallery, [][]float64{{0}}, 0.5)
	if err != nil {
		t.Fatalf("Match() at cutoff error = %v", err)
	}
	if len(result) != 1 || result[0].Confidence != 50 {
		t.Errorf("Match() at cutoff = %+v, want one candidate at 50", result)
	}

	// Just past the cutoff is rejected regardless of threshold.
	gallery[0].Vector = []float64{0.6000001}
	if _, err := Match(gallery, [][]float64{{0}}, 0.01); !errors.Is(err, ErrNoMatch) {
		t.Errorf("Match() past cutoff error = %v, want ErrNoMatch", err)
	}
}

func TestMatch_ThresholdRejects(t *testing.T) {
	gallery := []database.IdentityRecord{{IdentityID: "u1", Vector: []float64{0.5}}}

	// distance 0.5 scores 90.92
	if _, err := Match(gallery, [][]float64{{0}}, 0.95); !errors.Is(err, ErrNoMatch) {
		t.Errorf("Match() error = %v, want ErrNoMatch", err)
	}
	if _, err := Match(gallery, [][]float64{{0}}, 0.9); err != nil {
		t.Errorf("Match() error = %v, want nil", err)
	}
}

func TestMatch_MultipleFaces(t *testing.T) {
	gallery := testGallery()
	queries := [][]float64{
		{-0.5, 0.7, 0.0},   // Carol
		{10, 10, 10},       // nobody
		{0.9, 0.1, 0.30001}, // Alice
	}

	result, err := Match(gallery, queries, 0.9)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Match() returned %d candidates, want 2: %+v", len(result), result)
	}
	if result[0].IdentityID != "u3" || result[1].IdentityID != "u1" {
		t.Errorf("Match() order = %s, %s; want u3, u1", result[0].IdentityID, result[1].IdentityID)
	}
}

func TestMatch_NoMatch(t *testing.T) {
	tests := []struct {
		name    string
		gallery []database.IdentityRecord
		queries [][]float64
	}{
		{"empty gallery", nil, [][]float64{{1, 2, 3}}},
		{"no queries", testGallery(), nil},
		{"too far", testGallery(), [][]float64{{5, 5, 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Match(tt.gallery, tt.queries, 0.5)
			if !errors.Is(err, ErrNoMatch) {
				t.Errorf("Match() error = %v, want ErrNoMatch", err)
			}
			if result != nil {
				t.Errorf("Match() result = %+v, want nil", result)
			}
		})
	}
}

func TestMatch_Idempotent(t *testing.T) {
	gallery := testGallery()
	queries := [][]float64{{0.12, 0.21, 0.29}, {-0.45, 0.7, 0.05}}

	first, err1 := Match(gallery, queries, 0.8)
	second, err2 := Match(gallery, queries, 0.8)
	if !errors.Is(err1, err2) && err1 != err2 {
		t.Fatalf("Match() errors differ: %v vs %v", err1, err2)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Match() not idempotent: %+v vs %+v", first, second)
	}
}
