package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestJWTMiddleware(t *testing.T) {
	signer := NewSigner("secret")
	app := fiber.New()
	app.Get("/private", JWTMiddleware(signer), func(c *fiber.Ctx) error {
		if UserID(c) != "user-1" {
			return fiber.NewError(fiber.StatusUnauthorized)
		}
		return c.SendStatus(http.StatusOK)
	})

	// missing token
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized")
	}

	// wrong secret
	other, _ := NewSigner("other").Sign("user-1", AccessTokenTTL)
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for foreign token")
	}

	// valid token
	token, _ := signer.Sign("user-1", AccessTokenTTL)
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok")
	}
}

func TestSocketMiddleware(t *testing.T) {
	signer := NewSigner("secret")
	app := fiber.New()
	app.Get("/ws", SocketMiddleware(signer), func(c *fiber.Ctx) error {
		return c.SendString(UserID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected anonymous pass-through")
	}

	token, _ := signer.Sign("user-9", AccessTokenTTL)
	req = httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	resp, _ = app.Test(req)
	buf := make([]byte, 16)
	n, _ := resp.Body.Read(buf)
	if resp.StatusCode != http.StatusOK || string(buf[:n]) != "user-9" {
		t.Fatalf("expected user from query token, got %q", buf[:n])
	}

	req = httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for bad token")
	}
}

func TestSignerExpired(t *testing.T) {
	signer := NewSigner("secret")
	token, err := signer.Sign("user-1", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signer.Parse(token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestSignerRejectsEmptyUser(t *testing.T) {
	signer := NewSigner("secret")
	token, _ := signer.Sign("", AccessTokenTTL)
	if _, err := signer.Parse(token); err != ErrTokenInvalid {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestBearerFromHeader(t *testing.T) {
	if bearerFromHeader("Bearer abc") != "abc" || bearerFromHeader("bearer abc") != "abc" {
		t.Fatalf("expected bearer token")
	}
	if bearerFromHeader("Basic abc") != "" || bearerFromHeader("abc") != "" {
		t.Fatalf("expected empty for non-bearer")
	}
}
