package server

import (
	"github.com/damygoes/EcoStride-REST-API/internal/activity"
	"github.com/damygoes/EcoStride-REST-API/internal/apperror"
	"github.com/damygoes/EcoStride-REST-API/internal/auth"
	"github.com/damygoes/EcoStride-REST-API/internal/comment"
	"github.com/damygoes/EcoStride-REST-API/internal/config"
	"github.com/damygoes/EcoStride-REST-API/internal/engagement"
	applog "github.com/damygoes/EcoStride-REST-API/internal/logger"
	"github.com/damygoes/EcoStride-REST-API/internal/stream"
	"github.com/damygoes/EcoStride-REST-API/internal/user"

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
	Log    *applog.Logger
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, log *applog.Logger) *Server {
	app := fiber.New(fiber.Config{ErrorHandler: apperror.Handler})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient, log),
		Log:    log,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	users := user.NewService(s.DB, s.Log.With("component", "user"))
	activities := activity.NewService(s.DB, s.Log.With("component", "activity"))
	engagements := engagement.NewService(s.DB, activities, s.Log.With("component", "engagement"))
	comments := comment.NewService(s.DB, s.Stream, s.Log.With("component", "comment"))

	authSvc := auth.NewService(s.Cfg.JWTSecret, s.DB, auth.NewRevocations(s.Redis))
	authMiddleware := auth.Middleware(authSvc, users)
	provider := auth.NewGoogleProvider(s.Cfg.GoogleClientID, s.Cfg.GoogleClientSecret, s.Cfg.GoogleCallbackURL)
	cookies := auth.CookieOptions{Secure: s.Cfg.CookieSecure, RedirectURI: s.Cfg.GoogleRedirectURI}
	auth.RegisterRoutes(s.App.Group("/api/auth"), authSvc, provider, users, cookies, s.Log.With("component", "auth"))

	// specific /users/:id/... paths before the generic ones
	usersGroup := s.App.Group("/users")
	activity.RegisterUserRoutes(usersGroup, activities, authMiddleware)
	engagement.RegisterUserRoutes(usersGroup, engagements, authMiddleware)
	user.RegisterRoutes(usersGroup, users, authMiddleware)

	activitiesGroup := s.App.Group("/activities")
	activity.RegisterRoutes(activitiesGroup, activities, authMiddleware)
	engagement.RegisterActivityRoutes(activitiesGroup, engagements, authMiddleware)
	comment.RegisterRoutes(activitiesGroup, comments, authMiddleware)

	activity.RegisterAdminRoutes(s.App.Group("/admin"), activities, authMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// Close releases the stream subscription.
func (s *Server) Close() error {
	return s.Stream.Close()
}
