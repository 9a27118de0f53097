// Package server contains the HTTP handlers for the application's API
// endpoints.
package server

import (
	"context"
	"log"
	"time"

	"reverie/internal/ai"
	"reverie/internal/cache"
	"reverie/internal/config"
	"reverie/internal/database"
	"reverie/internal/middleware"
	"reverie/internal/models"
	"reverie/internal/repository"
	"reverie/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	verifier       middleware.IdentityVerifier
	admission      middleware.AdmissionStore

	userRepo     repository.UserRepository
	dreamRepo    repository.DreamRepository
	analysisRepo repository.AnalysisRepository

	userService       *service.UserService
	dreamService      *service.DreamService
	generationService *service.GenerationService
}

// NewServer creates a server instance, establishing database and Redis
// connections from config.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	redisClient := cache.Connect(cfg.RedisURL)
	s, err := NewServerWithDeps(cfg, db, redisClient)
	if err != nil {
		return nil, err
	}
	// Registered here rather than in NewServerWithDeps so tests can build
	// servers repeatedly without colliding in the default registry.
	s.promMiddleware = fiberprometheus.New("reverie-api")
	return s, nil
}

// NewServerWithDeps creates a Server from already-initialized dependencies.
// Tests use this with an in-memory database and miniredis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	s := &Server{
		config:       cfg,
		db:           db,
		redis:        redisClient,
		verifier:     middleware.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		userRepo:     repository.NewUserRepository(db),
		dreamRepo:    repository.NewDreamRepository(db),
		analysisRepo: repository.NewAnalysisRepository(db),
	}

	// Redis-backed admission when available, in-process counters otherwise.
	if redisClient != nil {
		s.admission = middleware.NewRedisAdmissionStore(redisClient)
	} else {
		s.admission = middleware.NewMemoryAdmissionStore()
	}

	gateway := ai.NewGateway(ai.ProviderSettings{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Timeout: cfg.ProviderTimeout,
	})

	s.userService = service.NewUserService(s.userRepo)
	s.dreamService = service.NewDreamService(s.dreamRepo, s.analysisRepo, redisClient)
	s.generationService = service.NewGenerationService(gateway, service.GenerationSettings{
		APIKey:             cfg.ProviderAPIKey,
		ChatModel:          cfg.ChatModel,
		ImageModel:         cfg.ImageModel,
		SpeechModel:        cfg.SpeechModel,
		TranscriptionModel: cfg.TranscriptionModel,
		MaxAudioBytes:      cfg.MaxAudioBytes,
	}, s.dreamRepo, s.analysisRepo)

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.Tracing())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so browser clients
	// still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/", s.HealthCheck)

	// Every API route under the general admission window; generation
	// routes additionally pass their own class window.
	api.Use(middleware.RateLimit(s.admission, middleware.ClassGeneral, s.config.GeneralLimit))

	resolve := middleware.UserResolver(s.userService.ResolveIdentity)

	dreams := api.Group("/dreams", middleware.AuthRequired(s.verifier, resolve))
	dreams.Post("/", s.CreateDream)
	dreams.Get("/", s.GetDreams)
	dreams.Get("/stats", s.GetDreamStats)
	// Specific /:id/:resource routes before the generic /:id route.
	dreams.Post("/:id/favorite", s.ToggleFavorite)
	dreams.Get("/:id/analyses", s.GetDreamAnalyses)
	dreams.Get("/:id", s.GetDream)
	dreams.Put("/:id", s.UpdateDream)
	dreams.Delete("/:id", s.DeleteDream)

	// Generation admits guests; admission keys fall back to the source
	// address and analysis persistence requires a resolved owner.
	generate := api.Group("/generate", middleware.OptionalAuth(s.verifier, resolve))
	generate.Post("/transcribe", s.TranscribeAudio)
	generate.Post("/title", s.GenerateTitle)
	generate.Post("/story",
		middleware.RateLimit(s.admission, middleware.ClassStory, s.config.StoryLimit), s.GenerateStory)
	generate.Post("/images",
		middleware.RateLimit(s.admission, middleware.ClassImages, s.config.ImageLimit), s.GenerateImages)
	generate.Post("/analysis",
		middleware.RateLimit(s.admission, middleware.ClassAnalysis, s.config.AnalysisLimit), s.AnalyzeDream)
	generate.Post("/speech",
		middleware.RateLimit(s.admission, middleware.ClassSpeech, s.config.SpeechLimit), s.SynthesizeSpeech)
}

// HealthCheck is a simple alias for ReadinessCheck.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return s.ReadinessCheck(c)
}

// LivenessCheck handles liveness probe requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports dependency health. Redis is optional; only the
// database gates readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"message": "Reverie",
		"version": "1.0.0",
		"status":  overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server.
func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName:   "Reverie API",
		BodyLimit: int(s.config.MaxAudioBytes) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return models.RespondWithError(c, fe.Code,
					models.NewValidationError(fe.Message))
			}
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
