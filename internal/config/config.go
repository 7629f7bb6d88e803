package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	CORSOrigins []string

	// CookieSecure marks the session cookie Secure; enable behind HTTPS.
	CookieSecure bool

	UseMockData bool
	MockDataURL string

	OllamaHost         string
	OllamaEmbedModel   string
	OllamaGenModel     string
	RelevanceInterests string

	SessionTTL    time.Duration
	CrawlTimeout  time.Duration
	CrawlMaxItems int
	RSSLimit      int
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8081"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		CORSOrigins: append([]string{"http://localhost:5173"}, getEnvAsList("CORS_ORIGINS")...),

		CookieSecure: getEnvAsBool("COOKIE_SECURE", false),

		UseMockData: getEnvAsBool("USE_MOCK_DATA", false),
		MockDataURL: getEnv("MOCK_DATA_URL", "http://localhost:5173/mock-data.json"),

		OllamaHost:         getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaEmbedModel:   getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OllamaGenModel:     getEnv("OLLAMA_GEN_MODEL", ""),
		RelevanceInterests: getEnv("RELEVANCE_INTERESTS", "Forschung, Digitalisierung, Innovation, KMU"),

		SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		CrawlTimeout:  getEnvAsDuration("CRAWL_TIMEOUT", 60*time.Second),
		CrawlMaxItems: getEnvAsInt("CRAWL_MAX_ITEMS", 50),
		RSSLimit:      getEnvAsInt("RSS_LIMIT", 50),
	}
}

// AIEnabled reports whether crawls should score relevance through Ollama.
func (c *Config) AIEnabled() bool {
	return c.OllamaGenModel != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
