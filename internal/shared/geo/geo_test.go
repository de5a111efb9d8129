package geo

import (
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	// Jakarta (-6.2, 106.816) to Bandung (-6.9175, 107.6191) ~ 115-120 km
	d := HaversineKm(-6.2, 106.816, -6.9175, 107.6191)
	if d < 100 || d > 140 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestHaversineSeoulCityHall(t *testing.T) {
	d := HaversineM(37.5665, 126.9780, 37.5651, 126.9895)
	want := 1025.5
	if math.Abs(d-want)/want > 0.01 {
		t.Fatalf("unexpected distance: %v", d)
	}
	if d < 1000 || d > 1060 {
		t.Fatalf("distance out of range: %v", d)
	}
}

func TestHaversineSymmetricAndZero(t *testing.T) {
	pairs := [][4]float64{
		{37.5665, 126.9780, 37.5651, 126.9895},
		{-33.8688, 151.2093, 51.5074, -0.1278},
		{0, 0, 0, 90},
		{89.9, 10, -89.9, -170},
	}
	for _, p := range pairs {
		ab := HaversineM(p[0], p[1], p[2], p[3])
		ba := HaversineM(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > 1e-6 {
			t.Fatalf("asymmetric distance %v vs %v", ab, ba)
		}
		if ab < 0 {
			t.Fatalf("negative distance %v", ab)
		}
		if HaversineM(p[0], p[1], p[0], p[1]) != 0 {
			t.Fatalf("expected zero distance for identical points")
		}
	}
}

func TestCorrectWithinBound(t *testing.T) {
	prev := Point{Lat: 37.5665, Lng: 126.9780}
	next := Point{Lat: 37.5666, Lng: 126.9781}
	speed := 5.0

	raw := Distance(prev, next)
	got, delta := CorrectForPlausibility(prev, next, &speed, 10)
	if got != next {
		t.Fatalf("expected point unchanged, got %+v", got)
	}
	if delta != raw {
		t.Fatalf("expected raw delta %v, got %v", raw, delta)
	}
}

func TestCorrectClampsJump(t *testing.T) {
	prev := Point{Lat: 37.5665, Lng: 126.9780}
	next := Point{Lat: 37.5651, Lng: 126.9895}
	speed := 3.0

	got, delta := CorrectForPlausibility(prev, next, &speed, 10)
	if delta != 30 {
		t.Fatalf("expected delta 30, got %v", delta)
	}

	// corrected point lies on prev -> next
	ratioLat := (got.Lat - prev.Lat) / (next.Lat - prev.Lat)
	ratioLng := (got.Lng - prev.Lng) / (next.Lng - prev.Lng)
	if math.Abs(ratioLat-ratioLng) > 1e-9 {
		t.Fatalf("corrected point off segment: %v vs %v", ratioLat, ratioLng)
	}
	if ratioLat <= 0 || ratioLat >= 1 {
		t.Fatalf("corrected point outside segment: %v", ratioLat)
	}
	want := 30 / Distance(prev, next)
	if math.Abs(ratioLat-want) > 1e-9 {
		t.Fatalf("unexpected ratio %v, want %v", ratioLat, want)
	}
}

func TestCorrectNilSpeedStaysPut(t *testing.T) {
	prev := Point{Lat: 1, Lng: 1}
	next := Point{Lat: 1.001, Lng: 1.001}

	got, delta := CorrectForPlausibility(prev, next, nil, 5)
	if delta != 0 {
		t.Fatalf("expected zero delta, got %v", delta)
	}
	if got != prev {
		t.Fatalf("expected previous point, got %+v", got)
	}
}

func TestCorrectZeroRawDistance(t *testing.T) {
	p := Point{Lat: 10, Lng: 20}
	speed := 4.0

	got, delta := CorrectForPlausibility(p, p, &speed, 3)
	if delta != 0 || got != p {
		t.Fatalf("expected no movement, got %+v %v", got, delta)
	}
	if math.IsNaN(got.Lat) || math.IsNaN(got.Lng) {
		t.Fatalf("unexpected NaN")
	}
}

func TestCorrectNegativeElapsed(t *testing.T) {
	prev := Point{Lat: 1, Lng: 1}
	next := Point{Lat: 1.0001, Lng: 1}
	speed := 10.0

	_, delta := CorrectForPlausibility(prev, next, &speed, -2)
	if delta != 0 {
		t.Fatalf("expected zero delta for negative elapsed, got %v", delta)
	}
}
