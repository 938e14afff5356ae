package geo

import (
	"math"
	"testing"

	"kijiwe/internal/types"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: -6.7924, Lng: 39.2083},
			b:         types.Point{Lat: -6.7924, Lng: 39.2083},
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "Dar es Salaam to Bagamoyo (~57km)",
			a:         types.Point{Lat: -6.7924, Lng: 39.2083},
			b:         types.Point{Lat: -6.4424, Lng: 38.9045},
			wantKm:    51.5,
			tolerance: 3.0,
		},
		{
			name:      "Dar es Salaam to Dodoma (~420km)",
			a:         types.Point{Lat: -6.7924, Lng: 39.2083},
			b:         types.Point{Lat: -6.1630, Lng: 35.7516},
			wantKm:    388,
			tolerance: 20,
		},
		{
			name:      "one degree of latitude (~111km)",
			a:         types.Point{Lat: 0, Lng: 39},
			b:         types.Point{Lat: 1, Lng: 39},
			wantKm:    111.2,
			tolerance: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("HaversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	a := types.Point{Lat: -6.8, Lng: 39.2}
	b := types.Point{Lat: -6.1, Lng: 35.7}
	d1 := HaversineKm(a, b)
	d2 := HaversineKm(b, a)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestHaversineKm_ZeroOnlyWhenEqual(t *testing.T) {
	a := types.Point{Lat: -6.8, Lng: 39.2}
	b := types.Point{Lat: -6.8, Lng: 39.2001}
	if d := HaversineKm(a, a); d != 0 {
		t.Errorf("distance to self = %f, want 0", d)
	}
	if d := HaversineKm(a, b); d <= 0 {
		t.Errorf("distance between distinct points = %f, want > 0", d)
	}
}

func TestSortByDistance(t *testing.T) {
	type entry struct {
		id   string
		dist float64
	}
	items := []entry{
		{id: "c", dist: 5.0},
		{id: "a", dist: 1.0},
		{id: "b", dist: 3.0},
	}

	SortByDistance(items, func(e entry) float64 { return e.dist })

	if items[0].id != "a" || items[1].id != "b" || items[2].id != "c" {
		t.Errorf("unexpected sort order: %v", items)
	}
}

func TestSortByDistance_EmptyAndSingle(t *testing.T) {
	var empty []float64
	SortByDistance(empty, func(f float64) float64 { return f })

	single := []float64{2.0}
	SortByDistance(single, func(f float64) float64 { return f })
	if single[0] != 2.0 {
		t.Errorf("single element sort failed")
	}
}
