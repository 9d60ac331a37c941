package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	AIProvider   string // "gemini" or "openai"
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string

	DatabaseURL string
	HTTPPort    string
	LogLevel    string

	// PromptRulesPath optionally points at a YAML rule table overriding the
	// built-in modality keywords.
	PromptRulesPath string

	// TrendThreshold is the dashboard trend noise filter in score points.
	TrendThreshold int
	// HeatmapRiskThreshold is the risk level at or above which scans get an
	// overlay.
	HeatmapRiskThreshold string

	// Object storage for heatmap artifacts; disabled when Endpoint is empty.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		AIProvider:   getEnv("AI_PROVIDER", "gemini"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", ""),

		DatabaseURL: getEnv("DATABASE_URL", "medilens_reports.db"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),

		PromptRulesPath: getEnv("PROMPT_RULES_PATH", ""),

		TrendThreshold:       getEnvAsInt("TREND_THRESHOLD", 2),
		HeatmapRiskThreshold: getEnv("HEATMAP_RISK_THRESHOLD", "High"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "medilens-artifacts"),
		MinioUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
	}

	switch cfg.AIProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required for the gemini provider")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for the openai provider")
		}
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q (want gemini or openai)", cfg.AIProvider)
	}

	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
