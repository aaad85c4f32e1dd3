package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jensenyang2004/Safii-sub000/internal/auth"
	"github.com/jensenyang2004/Safii-sub000/internal/config"
	"github.com/jensenyang2004/Safii-sub000/internal/contact"
	"github.com/jensenyang2004/Safii-sub000/internal/location"
	"github.com/jensenyang2004/Safii-sub000/internal/notify"
	"github.com/jensenyang2004/Safii-sub000/internal/push"
	"github.com/jensenyang2004/Safii-sub000/internal/remote"
	"github.com/jensenyang2004/Safii-sub000/internal/safety"
	"github.com/jensenyang2004/Safii-sub000/internal/scanner"
	"github.com/jensenyang2004/Safii-sub000/internal/stream"
)

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Stream  *stream.Hub
	Engine  *safety.Engine
	Scanner *scanner.Scanner
	Logger  *zap.Logger
}

func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)
	store := safety.NewStore(redisClient)
	sched := notify.NewLocalScheduler(log)
	records := remote.NewRepository(pg)

	engine := safety.NewEngine(
		store, sched, records, hub, log,
		time.Duration(cfg.ReportWindowMinutes)*time.Minute,
		safety.Defaults{
			SessionMinutes:   cfg.SessionMinutes,
			ReductionMinutes: cfg.ReductionMinutes,
			StrikeThreshold:  cfg.StrikeThreshold,
		},
	)
	sched.SetOnFire(func(userID string, p notify.Payload) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := engine.HandleNotification(ctx, userID, p); err != nil {
			log.Warn("notification callback", zap.String("user_id", userID), zap.Error(err))
		}
	})

	contacts := contact.NewService(pg)
	sender := push.NewExpoSender(cfg.ExpoPushURL, log)
	scan := scanner.New(
		records, contacts, sender, log,
		time.Duration(cfg.ReminderIntervalMinutes)*time.Minute,
		cfg.MaxContactNotifications,
	)

	s := &Server{
		App:     app,
		Cfg:     cfg,
		DB:      pg,
		Redis:   redisClient,
		Stream:  hub,
		Engine:  engine,
		Scanner: scan,
		Logger:  log,
	}

	registerRoutes(s, contacts, records)
	return s
}

func registerRoutes(s *Server, contacts *contact.Service, records *remote.Repository) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))
	safety.RegisterRoutes(s.App.Group("/safety"), s.Engine, jwtMiddleware)
	contact.RegisterRoutes(s.App.Group("/contacts"), contacts, records, jwtMiddleware)
	location.RegisterRoutes(s.App.Group("/location"), location.NewService(s.DB, s.Stream), jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
