package geocode

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("geocode not found")

type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat float64, lon float64, displayName string, confidence float64, err error)
}

// BuildGeocodeQuery assembles a geocoder query from the organization's city
// and the report's cross-street text.
func BuildGeocodeQuery(city string, crossStreet string) string {
	city = strings.TrimSpace(city)
	crossStreet = strings.TrimSpace(crossStreet)
	parts := []string{}
	if crossStreet != "" {
		parts = append(parts, crossStreet)
	}
	if city != "" {
		parts = append(parts, city)
	}
	return strings.Join(parts, ", ")
}

// PointInBounds reports whether (lat, lon) falls inside the polygon given as
// [lat, lon] vertex pairs. Uses the even-odd ray casting rule; an empty
// polygon imposes no bounds.
func PointInBounds(lat, lon float64, polygon [][2]float64) bool {
	if len(polygon) < 3 {
		return true
	}
	inside := false
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		yi, xi := polygon[i][0], polygon[i][1]
		yj, xj := polygon[j][0], polygon[j][1]
		if (yi > lat) != (yj > lat) &&
			lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}
