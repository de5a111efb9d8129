package server

import (
	"github.com/GOOTEAKIM/RunUs/internal/auth"
	"github.com/GOOTEAKIM/RunUs/internal/config"
	"github.com/GOOTEAKIM/RunUs/internal/db"
	"github.com/GOOTEAKIM/RunUs/internal/record"
	"github.com/GOOTEAKIM/RunUs/internal/relay"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Relay  *relay.Hub
	Signer *auth.Signer
}

func NewServer(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pool,
		Redis:  redisClient,
		Relay:  relay.NewHub(redisClient),
		Signer: auth.NewSigner(cfg.JWTSecret),
	}

	registerRoutes(s)
	return s
}

// Close stops the relay's Redis subscription.
func (s *Server) Close() {
	s.Relay.Close()
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	record.RegisterRoutes(s.App.Group("/api/v1/record"), record.NewService(querier(s.DB)))
	relay.RegisterRoutes(s.App, s.Relay, s.Signer)
}

// querier keeps a nil pool from becoming a non-nil interface.
func querier(pool *pgxpool.Pool) db.Querier {
	if pool == nil {
		return nil
	}
	return pool
}
