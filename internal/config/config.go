package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr string
	Port       string
	GinMode    string
	AppEnv     string

	DatabaseURL      string
	DatabasePassword string
	StorageTimeout   time.Duration

	APISecret string

	AIProvider string
	AIAPIKey   string
	AIModel    string
	AIBaseURL  string
	AITimeout  time.Duration

	AnalysisWindowDays int

	KafkaBrokers []string
	KafkaTopic   string

	// invalid 记录格式错误但有值的配置项，由 Validate 统一报告。
	invalid []string
}

const (
	defaultAnalysisWindowDays = 30
	defaultKafkaTopic         = "blog-stats-updated"
)

// Error 表示必需配置缺失或非法，服务应拒绝处理请求而不是回退到默认值。
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// AddInvalid 在已有的配置错误上追加非法项，err 不是 *Error 时新建一个。
func AddInvalid(err error, key string) error {
	var cfgErr *Error
	if errors.As(err, &cfgErr) {
		merged := *cfgErr
		merged.Invalid = append(slices.Clone(cfgErr.Invalid), key)
		return &merged
	}
	return &Error{Invalid: []string{key}}
}

// LoadDotEnv 读取工作目录下可选的 .env 与 .env.local，已存在的环境变量优先。
func LoadDotEnv() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}

// Load 从环境变量读取应用配置，可选项提供默认值；必需项留空，交由 Validate 判断。
func Load() AppConfig {
	port := env("PORT")
	if port == "" {
		port = "8080"
	}

	listenAddr := env("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	ginMode := env("GIN_MODE")
	if ginMode == "" {
		ginMode = "release"
	}

	appEnv := env("APP_ENV")
	if appEnv == "" {
		appEnv = "production"
	}

	cfg := AppConfig{
		ListenAddr:       listenAddr,
		Port:             port,
		GinMode:          ginMode,
		AppEnv:           appEnv,
		DatabaseURL:      env("DATABASE_URL"),
		DatabasePassword: env("DATABASE_PASSWORD"),
		APISecret:        env("API_SECRET"),
		AIProvider:       strings.ToLower(env("AI_PROVIDER")),
		AIAPIKey:         firstEnv("AI_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY"),
		AIModel:          env("AI_MODEL"),
		AIBaseURL:        env("AI_BASE_URL"),
		KafkaBrokers:     splitList(env("KAFKA_BROKERS")),
		KafkaTopic:       env("KAFKA_TOPIC"),
	}

	if cfg.AIProvider == "" {
		cfg.AIProvider = "gemini"
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = defaultKafkaTopic
	}

	cfg.StorageTimeout = cfg.duration("STORAGE_TIMEOUT", 10*time.Second)
	cfg.AITimeout = cfg.duration("AI_TIMEOUT", 60*time.Second)
	cfg.AnalysisWindowDays = cfg.positiveInt("ANALYSIS_WINDOW_DAYS", defaultAnalysisWindowDays)

	return cfg
}

// Validate 检查必需配置；全部满足时返回 nil，否则返回 *Error。
func (c AppConfig) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.AIAPIKey == "" {
		missing = append(missing, "AI_API_KEY")
	}
	if c.APISecret == "" {
		missing = append(missing, "API_SECRET")
	}

	invalid := append([]string(nil), c.invalid...)
	switch c.AIProvider {
	case "gemini", "openai", "deepseek":
	default:
		invalid = append(invalid, "AI_PROVIDER")
	}

	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}
	return &Error{Missing: missing, Invalid: invalid}
}

func (c *AppConfig) duration(key string, fallback time.Duration) time.Duration {
	raw := env(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		c.invalid = append(c.invalid, key)
		return fallback
	}
	return d
}

func (c *AppConfig) positiveInt(key string, fallback int) int {
	raw := env(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.invalid = append(c.invalid, key)
		return fallback
	}
	return n
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := env(key); v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
