package position

import "github.com/GOOTEAKIM/RunUs/internal/shared/geo"

// Filter turns a raw sample stream into plausibility-corrected positions and
// per-step distances. The zero value is ready to use.
type Filter struct {
	prev *Sample
}

// Apply returns the corrected sample and the meters to add for it. The first
// sample after a Reset always yields zero distance.
func (f *Filter) Apply(s Sample) (Sample, float64) {
	if f.prev == nil {
		f.prev = &s
		return s, 0
	}

	elapsed := s.Timestamp.Sub(f.prev.Timestamp).Seconds()
	point, delta := geo.CorrectForPlausibility(f.prev.Point(), s.Point(), f.prev.Speed, elapsed)

	corrected := Sample{
		Latitude:  point.Lat,
		Longitude: point.Lng,
		Timestamp: s.Timestamp,
		Speed:     s.Speed,
	}
	f.prev = &corrected
	return corrected, delta
}

func (f *Filter) Last() (Sample, bool) {
	if f.prev == nil {
		return Sample{}, false
	}
	return *f.prev, true
}

func (f *Filter) Reset() {
	f.prev = nil
}
