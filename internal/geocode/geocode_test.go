package geocode

import "testing"

func TestBuildGeocodeQuery(t *testing.T) {
	q := BuildGeocodeQuery("Newark", "Broad St & Market St")
	if q != "Broad St & Market St, Newark" {
		t.Fatalf("unexpected query: %s", q)
	}
	if BuildGeocodeQuery("Newark", "") != "Newark" {
		t.Fatalf("city-only query should not carry a separator")
	}
}

func TestPointInBounds(t *testing.T) {
	box := [][2]float64{{40.70, -74.25}, {40.70, -74.10}, {40.80, -74.10}, {40.80, -74.25}}

	if !PointInBounds(40.75, -74.17, box) {
		t.Fatalf("point inside the box reported as outside")
	}
	if PointInBounds(41.5, -74.17, box) {
		t.Fatalf("point north of the box reported as inside")
	}
	if PointInBounds(40.75, -73.9, box) {
		t.Fatalf("point east of the box reported as inside")
	}
}

func TestPointInBoundsEmptyPolygon(t *testing.T) {
	if !PointInBounds(40.75, -74.17, nil) {
		t.Fatalf("no polygon means no bounds")
	}
}
