package utils

import (
	"math"
)

const (
	EarthRadiusKm = 6371.0
	DegToRad      = math.Pi / 180.0
	RadToDeg      = 180.0 / math.Pi
)

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type BoundingBox struct {
	NorthEast Coordinate `json:"northEast"`
	SouthWest Coordinate `json:"southWest"`
}

// DistanceKm calculates the great-circle distance between two coordinates
// using the Haversine formula, rounded to 2 decimal places.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * DegToRad
	lat2Rad := lat2 * DegToRad

	dlat := (lat2 - lat1) * DegToRad
	dlon := (lon2 - lon1) * DegToRad

	a := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return Round2(EarthRadiusKm * c)
}

// Bearing calculates the initial bearing from the first coordinate to the
// second, in degrees from north (0-360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * DegToRad
	lat2Rad := lat2 * DegToRad
	dlon := (lon2 - lon1) * DegToRad

	y := math.Sin(dlon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dlon)

	bearing := math.Atan2(y, x) * RadToDeg
	return math.Mod(bearing+360, 360)
}

// IsWithinRadius checks whether a point lies within radiusKm of a center.
func IsWithinRadius(lat, lon, centerLat, centerLon, radiusKm float64) bool {
	return DistanceKm(lat, lon, centerLat, centerLon) <= radiusKm
}

// CalculateBoundingBox returns a box around a center point with a given
// radius in kilometers. Degenerate near the poles; fine for service areas.
func CalculateBoundingBox(centerLat, centerLon, radiusKm float64) BoundingBox {
	latDelta := radiusKm / 111.0 // 1 degree latitude ~ 111 km
	lonDelta := radiusKm / (111.0 * math.Cos(centerLat*DegToRad))

	return BoundingBox{
		NorthEast: Coordinate{
			Latitude:  centerLat + latDelta,
			Longitude: centerLon + lonDelta,
		},
		SouthWest: Coordinate{
			Latitude:  centerLat - latDelta,
			Longitude: centerLon - lonDelta,
		},
	}
}

// IsValidCoordinate checks if latitude and longitude values are valid.
func IsValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// IsValidCoordinatePair validates a [longitude, latitude] pair as stored on
// GeoJSON points: exactly two values, each within range.
func IsValidCoordinatePair(coordinates []float64) bool {
	if len(coordinates) != 2 {
		return false
	}
	return IsValidCoordinate(coordinates[1], coordinates[0])
}

// CenterPoint calculates the geographic center of multiple coordinates as
// the vector mean on the unit sphere, which stays correct across the
// antimeridian where a naive lat/lon average does not.
func CenterPoint(coordinates []Coordinate) Coordinate {
	if len(coordinates) == 0 {
		return Coordinate{0, 0}
	}

	var x, y, z float64
	for _, coord := range coordinates {
		latRad := coord.Latitude * DegToRad
		lonRad := coord.Longitude * DegToRad
		x += math.Cos(latRad) * math.Cos(lonRad)
		y += math.Cos(latRad) * math.Sin(lonRad)
		z += math.Sin(latRad)
	}

	n := float64(len(coordinates))
	x /= n
	y /= n
	z /= n

	lonRad := math.Atan2(y, x)
	hyp := math.Sqrt(x*x + y*y)
	latRad := math.Atan2(z, hyp)

	return Coordinate{
		Latitude:  latRad * RadToDeg,
		Longitude: lonRad * RadToDeg,
	}
}

// PolygonArea approximates the area of a polygon on the sphere in square
// kilometers, using the spherical excess of the projected ring. Vertices
// are taken in order; the ring is closed implicitly.
func PolygonArea(coordinates []Coordinate) float64 {
	if len(coordinates) < 3 {
		return 0
	}

	var total float64
	n := len(coordinates)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		lon1 := coordinates[i].Longitude * DegToRad
		lat1 := coordinates[i].Latitude * DegToRad
		lon2 := coordinates[j].Longitude * DegToRad
		lat2 := coordinates[j].Latitude * DegToRad

		total += (lon2 - lon1) * (2 + math.Sin(lat1) + math.Sin(lat2))
	}

	area := math.Abs(total) * EarthRadiusKm * EarthRadiusKm / 2
	return area
}

// Round2 rounds to 2 decimal places; distances and derived figures are
// stored at this precision.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
