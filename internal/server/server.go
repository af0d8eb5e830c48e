package server

import (
	"log"

	"github.com/tsullivan13/skate-bounty-app/internal/auth"
	"github.com/tsullivan13/skate-bounty-app/internal/bounty"
	"github.com/tsullivan13/skate-bounty-app/internal/config"
	"github.com/tsullivan13/skate-bounty-app/internal/instagram"
	"github.com/tsullivan13/skate-bounty-app/internal/profile"
	"github.com/tsullivan13/skate-bounty-app/internal/spot"
	"github.com/tsullivan13/skate-bounty-app/internal/storage"
	"github.com/tsullivan13/skate-bounty-app/internal/stream"
	"github.com/tsullivan13/skate-bounty-app/internal/submission"

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
	Stream *stream.Hub
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	optionalAuth := auth.OptionalJWTMiddleware(s.Cfg.JWTSecret)

	uploader, err := storage.NewS3Uploader(s.Cfg)
	if err != nil {
		log.Printf("object storage disabled: %v", err)
	}

	submissionSvc := submission.NewService(s.DB, instagram.NewClient(s.Cfg.OEmbedBaseURL), submission.Policy{
		RequireAcceptance:     s.Cfg.RequireAcceptance,
		RequirePostedAt:       s.Cfg.RequirePostedAt,
		VerifiedVoteThreshold: s.Cfg.VerifiedVoteThreshold,
	})

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))
	profile.RegisterRoutes(s.App.Group("/profiles"), profile.NewService(s.DB), jwtMiddleware)
	spot.RegisterRoutes(s.App.Group("/spots"), spot.NewService(s.DB), jwtMiddleware)

	bounties := s.App.Group("/bounties")
	bounty.RegisterRoutes(bounties, bounty.NewService(s.DB, s.Stream), jwtMiddleware, optionalAuth)
	submission.RegisterBountyRoutes(bounties, submissionSvc, jwtMiddleware)
	submission.RegisterSubmissionRoutes(s.App.Group("/submissions"), submissionSvc, jwtMiddleware)

	storage.RegisterRoutes(s.App.Group("/storage"), storage.NewService(s.DB, uploaderOrNil(uploader)), jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// uploaderOrNil keeps a typed-nil *S3Uploader from sneaking into the
// Uploader interface value.
func uploaderOrNil(u *storage.S3Uploader) storage.Uploader {
	if u == nil {
		return nil
	}
	return u
}
