package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nkosei/brightpath-backend/internal/db"
	"github.com/nkosei/brightpath-backend/internal/handlers"
	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/middleware"
	"github.com/nkosei/brightpath-backend/internal/observability"
	"github.com/nkosei/brightpath-backend/internal/platform/gcp"
	"github.com/nkosei/brightpath-backend/internal/platform/qdrant"
	"github.com/nkosei/brightpath-backend/internal/repos"
	"github.com/nkosei/brightpath-backend/internal/server"
	"github.com/nkosei/brightpath-backend/internal/services"
	"github.com/nkosei/brightpath-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOtel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "brightpath-backend",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})
	if shutdownOtel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	lessonRepo := repos.NewLessonRepo(thePG, log)
	lessonMediaRepo := repos.NewLessonMediaRepo(thePG, log)
	materialChunkRepo := repos.NewMaterialChunkRepo(thePG, log)

	// Platform
	log.Info("Setting up platform services from main...")
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}
	qdrantCfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		log.Error("Could not resolve qdrant config", "error", err)
		os.Exit(1)
	}
	vectorStore, err := qdrant.NewVectorStore(log, qdrantCfg)
	if err != nil {
		log.Error("Could not init qdrant vector store", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	completionService, err := services.NewCompletionService(log)
	if err != nil {
		log.Error("Could not init CompletionService", "error", err)
		os.Exit(1)
	}
	embeddingService, err := services.NewEmbeddingService(log)
	if err != nil {
		log.Error("Could not init EmbeddingService", "error", err)
		os.Exit(1)
	}
	if utils.GetEnvAsInt("EMBEDDING_SMOKE_TEST", 1, log) == 1 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := embeddingService.VerifyDimensions(ctx); err != nil {
			cancel()
			log.Error("Embedding dimension smoke test failed", "error", err)
			os.Exit(1)
		}
		cancel()
	}
	retrievalService, err := services.NewRetrievalService(log, embeddingService, vectorStore, materialChunkRepo)
	if err != nil {
		log.Error("Could not init RetrievalService", "error", err)
		os.Exit(1)
	}
	webSearchService, err := services.NewWebSearchService(log)
	if err != nil {
		log.Error("Could not init WebSearchService", "error", err)
		os.Exit(1)
	}
	stylePack, err := services.LoadStylePack(log)
	if err != nil {
		log.Error("Could not load style pack", "error", err)
		os.Exit(1)
	}
	textGen, err := services.NewTextLessonGenerator(log, completionService, stylePack)
	if err != nil {
		log.Error("Could not init TextLessonGenerator", "error", err)
		os.Exit(1)
	}
	slidesGen, err := services.NewSlidesGenerator(log, completionService, stylePack)
	if err != nil {
		log.Error("Could not init SlidesGenerator", "error", err)
		os.Exit(1)
	}
	podcastGen, err := services.NewPodcastScriptGenerator(log, completionService, stylePack)
	if err != nil {
		log.Error("Could not init PodcastScriptGenerator", "error", err)
		os.Exit(1)
	}
	speechService, err := services.NewSpeechService(log)
	if err != nil {
		log.Warn("Speech synthesis unavailable", "error", err)
	}
	imageService, err := services.NewImageService(log, bucketService)
	if err != nil {
		log.Warn("Image synthesis unavailable", "error", err)
	}
	videoService, err := services.NewVideoService(log)
	if err != nil {
		log.Warn("Video synthesis unavailable", "error", err)
	}
	compositorService := services.NewCompositorService(log)
	placeholderVisual, err := services.NewPlaceholderVisual(log)
	if err != nil {
		log.Error("Could not init PlaceholderVisual", "error", err)
		os.Exit(1)
	}
	resultCache, err := services.NewResultCache(log)
	if err != nil {
		log.Warn("Result cache unavailable", "error", err)
	}

	generationService, err := services.NewGenerationService(log, services.GenerationDeps{
		Retrieval:   retrievalService,
		WebSearch:   webSearchService,
		TextGen:     textGen,
		SlidesGen:   slidesGen,
		PodcastGen:  podcastGen,
		Speech:      speechService,
		Image:       imageService,
		Video:       videoService,
		Compositor:  compositorService,
		Placeholder: placeholderVisual,
		Bucket:      bucketService,
		Lessons:     lessonRepo,
		Media:       lessonMediaRepo,
		Cache:       resultCache,
	})
	if err != nil {
		log.Error("Could not init GenerationService", "error", err)
		os.Exit(1)
	}

	// Handlers + Router
	log.Info("Setting up Handlers from main...")
	generationHandler := handlers.NewGenerationHandler(generationService)
	identityMiddleware := middleware.NewIdentityMiddleware(log)

	router := server.NewRouter(server.RouterConfig{
		GenerationHandler:  generationHandler,
		IdentityMiddleware: identityMiddleware,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Starting server...", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
