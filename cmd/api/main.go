package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"newspulse/db"
	"newspulse/internal/app"
	"newspulse/internal/config"
	"newspulse/internal/handler"
	"newspulse/internal/repository"
)

func main() {

	godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	err = app.Connect(context.Background(), cfg)
	if err != nil {
		log.Fatalf("error connecting to DB: %v", err)
	}
	defer app.Close()

	sources := app.Sources(cfg.Sources)
	if sources.Len() == 0 {
		slog.Warn("no news source API keys configured")
	}

	orchestrator := app.Orchestrator(cfg, db.DB, db.Redis)

	feedHandler := handler.NewFeedHandler(sources, orchestrator, repository.NewArticleRepository(db.DB), app.DispatchSettings(cfg.Dispatch))
	analysisHandler := handler.NewAnalysisHandler(orchestrator)

	r := gin.Default()

	allowedOrigins := []string{"http://localhost:3000"}

	if cfg.FrontendURL != "" && cfg.FrontendURL != allowedOrigins[0] {
		allowedOrigins = append(allowedOrigins, cfg.FrontendURL)
	}

	slog.Info("AllowOrigins URL:", "urls", allowedOrigins)

	r.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Cache-Control"},
	}))

	r.GET("/search", feedHandler.Search)
	r.GET("/headlines", feedHandler.Headlines)
	r.POST("/articles/:id/rhetoric", analysisHandler.Rhetoric)
	r.POST("/articles/:id/compare/:ref", analysisHandler.Compare)
	r.GET("/health", feedHandler.GetHealth)

	err = r.Run(":" + cfg.Port)
	if err != nil {
		log.Fatalf("error starting server: %v", err)
	}
}
