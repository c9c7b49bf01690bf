package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Retriever backends selectable via RETRIEVER_BACKEND.
const (
	RetrieverRemote = "remote"
	RetrieverLocal  = "local"
)

type Config struct {
	Port        string
	Env         string
	DatabaseDSN string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	LLMBaseURL       string
	RetrieverBackend string
	CorpusPath       string
	NRelevantDocs    int
	MaxModelTokens   int
	MessageCost      float64
}

func Load() Config {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseDSN: getEnv("DATABASE_DSN", "root:password@tcp(127.0.0.1:3306)/chatledger?parseTime=true"),

		JWTSecret:       getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		AccessTokenTTL:  time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRES_MINUTES", 60)) * time.Minute,
		RefreshTokenTTL: time.Duration(getEnvInt("REFRESH_TOKEN_EXPIRES_HOURS", 24)) * time.Hour,

		LLMBaseURL:       getEnv("LLM_BASE_URL", "http://127.0.0.1:8000"),
		RetrieverBackend: getEnv("RETRIEVER_BACKEND", RetrieverRemote),
		CorpusPath:       getEnv("CORPUS_PATH", ""),
		NRelevantDocs:    getEnvInt("N_DOCS", 5),
		MaxModelTokens:   getEnvInt("N_TOKENS", 5000),
		MessageCost:      10,
	}

	if cfg.Env == "production" && cfg.JWTSecret == "dev-secret-change-in-production" {
		slog.Error("JWT_SECRET must be set in production environment")
		os.Exit(1)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using fallback", "key", key, "value", v)
		return fallback
	}
	return n
}
