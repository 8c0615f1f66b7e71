package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string `yaml:"environment"`
	Port        string `yaml:"port"`

	// 数据库配置
	UseLocalDB  bool   `yaml:"use_local_db"`
	PostgresDSN string `yaml:"postgres_dsn"`

	// JWT配置
	JWTSecret string `yaml:"jwt_secret"`

	// 基础URL，用于构建魔法链接
	BaseURL string `yaml:"base_url"`

	// CORS配置
	AllowedOrigins []string `yaml:"allowed_origins"`

	// 邮件配置 (Resend)
	ResendAPIKey string `yaml:"resend_api_key"`
	EmailFrom    string `yaml:"email_from"`

	// OpenAI配置
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	// Redis 限流配置
	RedisAddr          string `yaml:"redis_addr"`
	RedisPassword      string `yaml:"redis_password"`
	RedisDB            int    `yaml:"redis_db"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`

	// 调试配置
	Debug bool `yaml:"debug"`
}

// defaults 默认配置
func defaults() *Config {
	return &Config{
		Environment:        "development",
		Port:               "3000",
		UseLocalDB:         true,
		JWTSecret:          defaultJWTSecret,
		BaseURL:            "http://localhost:3000",
		AllowedOrigins:     []string{"*"},
		EmailFrom:          "democrm@vol1n.dev",
		OpenAIModel:        "gpt-4o",
		RateLimitPerMinute: 10,
	}
}

// LoadConfig 加载配置
//
// Precedence, lowest first: built-in defaults, the optional YAML file named
// by CONFIG_FILE, the .env file for the environment, process environment.
func LoadConfig() (*Config, error) {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	// godotenv.Load never overrides variables that are already set
	envFile := ".env.local"
	if env == "production" {
		envFile = ".env.production"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	config := defaults()

	path := getEnvWithDefault("CONFIG_FILE", "democrm.yaml")
	if err := loadYAMLFile(path, config); err != nil {
		return nil, err
	}

	applyEnv(config)

	// 生产环境关闭调试
	if config.IsProduction() {
		config.Debug = false
	}

	return config, nil
}

// loadYAMLFile 读取可选的 YAML 配置文件，文件不存在时静默返回
func loadYAMLFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv 环境变量覆盖文件配置
func applyEnv(config *Config) {
	config.Environment = getEnvWithDefault("ENVIRONMENT", config.Environment)
	config.Port = getEnvWithDefault("PORT", config.Port)
	config.UseLocalDB = getEnvBool("USE_LOCAL_DB", config.UseLocalDB)
	config.JWTSecret = getEnvWithDefault("JWT_SECRET", config.JWTSecret)
	config.Debug = getEnvBool("DEBUG", config.Debug)

	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(getEnvWithDefault("POSTGRES_DSN", config.PostgresDSN))
	config.BaseURL = strings.TrimRight(strings.TrimSpace(getEnvWithDefault("BASE_URL", config.BaseURL)), "/")

	config.ResendAPIKey = strings.TrimSpace(getEnvWithDefault("RESEND_API_KEY", config.ResendAPIKey))
	config.EmailFrom = getEnvWithDefault("EMAIL_FROM", config.EmailFrom)

	config.OpenAIAPIKey = strings.TrimSpace(getEnvWithDefault("OPENAI_API_KEY", config.OpenAIAPIKey))
	config.OpenAIModel = getEnvWithDefault("OPENAI_MODEL", config.OpenAIModel)
	config.OpenAIBaseURL = strings.TrimSpace(getEnvWithDefault("OPENAI_BASE_URL", config.OpenAIBaseURL))

	config.RedisAddr = strings.TrimSpace(getEnvWithDefault("REDIS_ADDR", config.RedisAddr))
	config.RedisPassword = getEnvWithDefault("REDIS_PASSWORD", config.RedisPassword)
	config.RedisDB = getEnvInt("REDIS_DB", config.RedisDB)
	config.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", config.RateLimitPerMinute)

	// CORS配置
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = splitList(origins)
	}

	// an explicit DSN wins over the in-memory default unless USE_LOCAL_DB is set
	if config.PostgresDSN != "" && os.Getenv("USE_LOCAL_DB") == "" {
		config.UseLocalDB = false
	}
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	cachedErr    error
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// On serverless (Vercel), it initializes once per cold start and
// reuses it across warm invocations, avoiding per-request parsing.
func GetCached() (*Config, error) {
	configOnce.Do(func() {
		cachedConfig, cachedErr = LoadConfig()
	})
	return cachedConfig, cachedErr
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		fmt.Println("⚠️  Using default JWT secret (not recommended for production)")
	}

	if !c.UseLocalDB && c.PostgresDSN == "" {
		return fmt.Errorf("数据库配置不完整：请配置 POSTGRES_DSN 或设置 USE_LOCAL_DB=true")
	}

	if c.IsProduction() {
		if c.UseLocalDB {
			return fmt.Errorf("USE_LOCAL_DB is not allowed in production")
		}
		if c.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY must be set in production")
		}
	}

	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}

	return nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// 辅助函数

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt 获取整数类型的环境变量
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
