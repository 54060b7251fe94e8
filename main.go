package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/carlvellotti/meme-mage-sub001/config"
	"github.com/carlvellotti/meme-mage-sub001/handlers"
	"github.com/carlvellotti/meme-mage-sub001/internal/aiclient"
	"github.com/carlvellotti/meme-mage-sub001/internal/artifacts"
	"github.com/carlvellotti/meme-mage-sub001/internal/db"
	"github.com/carlvellotti/meme-mage-sub001/internal/media"
	"github.com/carlvellotti/meme-mage-sub001/internal/pipeline"
	"github.com/carlvellotti/meme-mage-sub001/internal/scraper"
	"github.com/carlvellotti/meme-mage-sub001/internal/thumbnail"
	"github.com/carlvellotti/meme-mage-sub001/internal/worker"
	"github.com/carlvellotti/meme-mage-sub001/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := config.NewLogger(cfg.LogLevel)

	supabase, err := config.NewSupabase(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize Supabase: %v", err)
	}

	templateStore := db.NewTemplateStore(supabase, logger)
	store := artifacts.NewStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.StorageTimeout, logger)
	tool := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath, logger)
	ai := aiclient.New(cfg.OpenAIKey, cfg.AIRequestsPerSecond, logger)
	ytdlp := scraper.NewYtDlp(cfg.YtDlpPath, cfg.ScratchDir, logger)

	// An external thumbnail service takes precedence; without one, frames
	// are extracted locally with ffmpeg.
	var thumbs pipeline.ThumbnailGenerator
	if cfg.ThumbnailServiceURL != "" {
		thumbs = thumbnail.NewService(cfg.ThumbnailServiceURL, cfg.StageTimeout, logger)
	} else {
		thumbs = thumbnail.NewExtractor(tool, store, cfg.ThumbnailBucket, cfg.ScratchDir, logger)
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Scraper:    ytdlp,
		Tool:       tool,
		Store:      store,
		Thumbnails: thumbs,
		AI:         ai,
		Templates:  templateStore,
	}, pipeline.Config{
		VideoBucket:     cfg.VideoBucket,
		ThumbnailBucket: cfg.ThumbnailBucket,
		ScratchDir:      cfg.ScratchDir,
		Workers:         cfg.ScrapeWorkers,
		StageTimeout:    cfg.StageTimeout,
	}, logger)

	cropper := pipeline.NewCropper(templateStore, store, tool, cfg.ScratchDir, logger)

	dispatcher := worker.NewDispatcher(cfg.JobWorkers, cfg.JobQueueSize, logger)
	dispatcher.Run()

	h := handlers.NewApplicationHandler(logger, templateStore, orchestrator, cropper, dispatcher, cfg.StageTimeout)

	app := fiber.New()

	// Middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*", // Allow all origins for development
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(middleware.RequestLogger(logger))

	// Health check route
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"message": "Template service is healthy",
		})
	})

	// API v1 routes
	apiV1 := app.Group("/api/v1")

	apiV1.Post("/templates/scrape", h.ScrapeTemplates)
	apiV1.Get("/templates", h.ListTemplates)
	apiV1.Get("/templates/:id", h.GetTemplate)
	apiV1.Post("/templates/:id/crop", h.CropTemplate)
	apiV1.Post("/templates/:id/reanalyze", h.ReanalyzeTemplate)

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down template service...")
		if err := app.Shutdown(); err != nil {
			logger.Errorf("Error during server shutdown: %v", err)
		}
	}()

	logger.Infof("Starting template service on port %s...", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Fatalf("Server stopped: %v", err)
	}

	// Listen returned cleanly, so the server has drained; stop the workers.
	dispatcher.Stop()
	logger.Info("Template service shut down gracefully.")
}
