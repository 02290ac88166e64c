package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
	Business BusinessConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	PublicURL   string
	FrontendURL string
	CORSOrigins []string
}

type DatabaseConfig struct {
	URI  string
	Name string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	TopicPayment  string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint   string
	LogLevel         string
	TraceSampleRatio float64
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// GatewayConfig holds SSLCommerz merchant credentials.
type GatewayConfig struct {
	StoreID         string
	StorePassword   string
	IsLive          bool
	Currency        string
	Timeout         time.Duration
	VerifyCallbacks bool
	ValidateSuccess bool
}

type BusinessConfig struct {
	IdempotencyTTL time.Duration
	OrderLockTTL   time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenHours, _ := strconv.Atoi(getEnv("JWT_EXPIRY_HOURS", "168"))
	gatewayTimeout, _ := strconv.Atoi(getEnv("SSLCOMMERZ_TIMEOUT_SECONDS", "30"))
	idempotencyTTL, _ := strconv.Atoi(getEnv("IDEMPOTENCY_TTL_SECONDS", "86400"))
	sampleRatio, _ := strconv.ParseFloat(getEnv("TRACE_SAMPLE_RATIO", "0"), 64)

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "5000"),
			Env:         getEnv("ENV", "development"),
			PublicURL:   strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:5000"), "/"),
			FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
			CORSOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			URI:  getEnv("MONGODB_URI", ""),
			Name: getEnv("MONGODB_DATABASE", "academixDB"),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "academix"),
		},
		Kafka: KafkaConfig{
			Enabled:       getBool("KAFKA_ENABLED", true),
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			TopicPayment:  getEnv("KAFKA_TOPIC_PAYMENT_EVENTS", "payment-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "academix-audit-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint:   getEnv("JAEGER_ENDPOINT", ""),
			LogLevel:         getEnv("LOG_LEVEL", ""),
			TraceSampleRatio: sampleRatio,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", getEnv("ACCESS_TOKEN_SECRET", "")),
			TokenTTL:  time.Duration(tokenHours) * time.Hour,
		},
		Gateway: GatewayConfig{
			StoreID:         getEnv("SSLCOMMERZ_STORE_ID", ""),
			StorePassword:   getEnv("SSLCOMMERZ_STORE_PASSWORD", ""),
			IsLive:          getBool("SSLCOMMERZ_IS_LIVE", false),
			Currency:        getEnv("SSLCOMMERZ_CURRENCY", "BDT"),
			Timeout:         time.Duration(gatewayTimeout) * time.Second,
			VerifyCallbacks: getBool("SSLCOMMERZ_VERIFY_CALLBACKS", true),
			ValidateSuccess: getBool("SSLCOMMERZ_VALIDATE_SUCCESS", true),
		},
		Business: BusinessConfig{
			IdempotencyTTL: time.Duration(idempotencyTTL) * time.Second,
			OrderLockTTL:   time.Duration(gatewayTimeout+5) * time.Second,
		},
	}

	log.Printf("Config loaded: env=%s port=%s database=%s", cfg.Server.Env, cfg.Server.Port, cfg.Database.Name)
	return cfg
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URI == "" {
		errs = append(errs, errors.New("MONGODB_URI is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRY_HOURS must be positive"))
	}
	if c.Gateway.StoreID == "" || c.Gateway.StorePassword == "" {
		errs = append(errs, errors.New("SSLCOMMERZ_STORE_ID and SSLCOMMERZ_STORE_PASSWORD are required"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("SSLCOMMERZ_TIMEOUT_SECONDS must be positive"))
	}
	for _, origin := range c.Server.CORSOrigins {
		if !validOrigin(origin) {
			errs = append(errs, fmt.Errorf("CORS_ALLOWED_ORIGINS: %q must be * or an http(s) origin", origin))
		}
	}
	if len(c.Server.CORSOrigins) > 1 && slices.Contains(c.Server.CORSOrigins, "*") {
		errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS: * cannot be combined with other origins"))
	}
	return errors.Join(errs...)
}

func validOrigin(origin string) bool {
	if origin == "*" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultVal)))
	if err != nil {
		return defaultVal
	}
	return val
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
