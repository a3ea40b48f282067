// Package geo holds the spherical geometry shared by the listing locators.
package geo

import (
	"math"

	"monositi/internal/models"
)

// AngularRadius converts a distance in kilometres into radians on the Earth sphere.
func AngularRadius(radiusKm float64) float64 {
	return radiusKm / models.EarthRadiusKm
}

// CentralAngle returns the great-circle angle in radians between two points
// given in degrees (haversine form).
func CentralAngle(lat1, lng1, lat2, lng2 float64) float64 {
	φ1 := radians(lat1)
	φ2 := radians(lat2)
	dφ := radians(lat2 - lat1)
	dλ := radians(lng2 - lng1)

	h := math.Sin(dφ/2)*math.Sin(dφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	return 2 * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceKm is the great-circle distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	return CentralAngle(lat1, lng1, lat2, lng2) * models.EarthRadiusKm
}

// Within reports whether (lat, lng) lies inside the spherical cap of the given
// angular radius around the centre.
func Within(centerLat, centerLng, angularRadius, lat, lng float64) bool {
	return CentralAngle(centerLat, centerLng, lat, lng) <= angularRadius
}

// Box is a latitude/longitude rectangle in degrees.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
	// WrapsLng is set when the box crosses the antimeridian; then a point is
	// inside when lng >= MinLng OR lng <= MaxLng.
	WrapsLng bool
}

// BoundingBox returns a rectangle that contains the whole cap. It is used as
// a cheap index prefilter before the exact Within check.
func BoundingBox(lat, lng, angularRadius float64) Box {
	dLat := degrees(angularRadius)
	box := Box{MinLat: lat - dLat, MaxLat: lat + dLat}

	if box.MaxLat >= 90 || box.MinLat <= -90 {
		// the cap touches a pole: every longitude qualifies
		box.MinLat = math.Max(box.MinLat, -90)
		box.MaxLat = math.Min(box.MaxLat, 90)
		box.MinLng, box.MaxLng = -180, 180
		return box
	}

	dLng := degrees(math.Asin(math.Min(1, math.Sin(angularRadius)/math.Cos(radians(lat)))))
	box.MinLng = lng - dLng
	box.MaxLng = lng + dLng
	if box.MinLng < -180 {
		box.MinLng += 360
		box.WrapsLng = true
	}
	if box.MaxLng > 180 {
		box.MaxLng -= 360
		box.WrapsLng = true
	}
	return box
}

func radians(d float64) float64 { return d * math.Pi / 180 }

func degrees(r float64) float64 { return r * 180 / math.Pi }
