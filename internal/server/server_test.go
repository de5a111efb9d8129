package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GOOTEAKIM/RunUs/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHealthRoute(t *testing.T) {
	s := NewServer(config.Config{JWTSecret: "secret", ServerPort: ":0"}, nil, nil)
	defer s.Close()

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestRecordRouteWithoutDatabase(t *testing.T) {
	s := NewServer(config.Config{JWTSecret: "secret"}, nil, nil)
	defer s.Close()

	body := []byte(`{"userId":"1","partyId":"p","distance":10,"time":5,"kcal":1}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/record/result_save", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected service unavailable without a database")
	}
}

func TestRoomRoutesUseConfiguredSecret(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewServer(config.Config{JWTSecret: "secret"}, nil, rdb)
	defer s.Close()

	tok, err := s.Signer.Sign("7", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected room created")
	}
	if len(mr.Keys()) != 1 {
		t.Fatalf("expected owner key in redis, got %v", mr.Keys())
	}
}
