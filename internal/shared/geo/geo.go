package geo

import "math"

// EarthRadiusM is the mean Earth radius used for all distance math.
const EarthRadiusM = 6371000.0

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineM returns the great-circle distance in meters between two
// coordinates given in degrees.
func HaversineM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	phi1 := lat1 * rad
	phi2 := lat2 * rad
	dPhi := (lat2 - lat1) * rad
	dLambda := (lon2 - lon1) * rad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	return HaversineM(lat1, lon1, lat2, lon2) / 1000
}

// Distance is HaversineM over two points.
func Distance(a, b Point) float64 {
	return HaversineM(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Interpolate walks ratio of the way from a to b in degree space.
func Interpolate(a, b Point, ratio float64) Point {
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*ratio,
		Lng: a.Lng + (b.Lng-a.Lng)*ratio,
	}
}

// CorrectForPlausibility clamps a GPS jump to what the previous speed allows
// over elapsedSeconds. It returns the point to keep and the distance to
// accumulate. A nil speed counts as standing still.
func CorrectForPlausibility(prev, next Point, prevSpeed *float64, elapsedSeconds float64) (Point, float64) {
	raw := Distance(prev, next)
	if raw == 0 || math.IsNaN(raw) {
		return next, 0
	}

	speed := 0.0
	if prevSpeed != nil && *prevSpeed > 0 {
		speed = *prevSpeed
	}
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	maxPossible := speed * elapsedSeconds

	if raw > maxPossible {
		return Interpolate(prev, next, maxPossible/raw), maxPossible
	}
	return next, raw
}
