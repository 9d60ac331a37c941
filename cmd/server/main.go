package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medilens.app/analysis-server/internal/api"
	"medilens.app/analysis-server/internal/artifacts"
	"medilens.app/analysis-server/internal/config"
	"medilens.app/analysis-server/internal/core"
	"medilens.app/analysis-server/internal/prompt"
	"medilens.app/analysis-server/internal/report"
	"medilens.app/analysis-server/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	ctx := context.Background()

	// Initialize report store
	reportStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer reportStore.Close()
	if err := reportStore.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize model client
	var modelClient core.ModelClient
	switch cfg.AIProvider {
	case "openai":
		modelClient = core.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	default:
		gemini, err := core.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini client: %v", err)
		}
		defer gemini.Close()
		modelClient = gemini
	}
	log.Printf("Using %s as the analysis provider", cfg.AIProvider)

	// Prompt rule table: built-in defaults unless a YAML override is given
	rules := prompt.DefaultRuleset()
	if cfg.PromptRulesPath != "" {
		rules, err = prompt.LoadRuleset(cfg.PromptRulesPath)
		if err != nil {
			log.Fatalf("Failed to load prompt rules: %v", err)
		}
		log.Printf("Loaded prompt rules from %s", cfg.PromptRulesPath)
	}

	// Optional artifact offload for heatmap overlays
	var artifactStore core.ArtifactStore
	if cfg.MinioEndpoint != "" {
		objectStore, err := artifacts.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("Failed to initialize artifact store: %v", err)
		}
		artifactStore = objectStore
		log.Printf("Heatmap artifacts will be uploaded to %s/%s", cfg.MinioEndpoint, cfg.MinioBucket)
	}

	heatmapThreshold := report.RiskLevel(cfg.HeatmapRiskThreshold)
	if !heatmapThreshold.Valid() {
		log.Fatalf("Invalid HEATMAP_RISK_THRESHOLD %q", cfg.HeatmapRiskThreshold)
	}

	analysisService := core.NewAnalysisService(modelClient, rules, heatmapThreshold, artifactStore)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(analysisService, reportStore, cfg.TrendThreshold)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,  // Uploads can be multi-megabyte images
		WriteTimeout: 120 * time.Second, // Model calls can take time; this also bounds a hung call
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
