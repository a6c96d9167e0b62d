package config

import (
	"os"
	"strings"
	"time"
)

// DefaultBackendURL 分析后端默认地址
const DefaultBackendURL = "http://localhost:8000"

// Config 应用配置
type Config struct {
	Port           string
	BackendURL     string
	BackendTimeout time.Duration // 0 表示不设置超时，沿用传输层默认行为
	DatabaseURL    string
	SessionTTL     time.Duration
	CORSOrigins    []string
	LogLevel       string
}

// Load 从环境变量加载配置
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		BackendURL:     strings.TrimRight(getEnv("BACKEND_URL", DefaultBackendURL), "/"),
		BackendTimeout: getDuration("BACKEND_TIMEOUT", 0),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SessionTTL:     getPositiveDuration("SESSION_TTL", 30*time.Minute),
		CORSOrigins:    parseOrigins(getEnv("CORS_ORIGINS", "")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

// getPositiveDuration 同getDuration，但0也回退到默认值
func getPositiveDuration(key string, defaultValue time.Duration) time.Duration {
	if d := getDuration(key, defaultValue); d > 0 {
		return d
	}
	return defaultValue
}

// parseOrigins 解析逗号分隔的来源列表，空则允许全部
func parseOrigins(raw string) []string {
	var origins []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			origins = append(origins, item)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
