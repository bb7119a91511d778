package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the API server
type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	JWT   JWTConfig
	CORS  CORSConfig
	Push  PushConfig
}

type AppConfig struct {
	Env  string
	Port string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the PostgreSQL connection string
func (d DBConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode +
		" TimeZone=UTC"
}

// URL returns the PostgreSQL connection URL (for golang-migrate)
func (d DBConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type CORSConfig struct {
	Origins []string
}

// PushConfig selects and configures the external push gateway.
// Provider is "fcm" (Firebase Admin SDK) or "legacy" (HTTP wire contract).
type PushConfig struct {
	Provider        string
	CredentialsFile string
	ServerKey       string
	Endpoint        string
	Timeout         time.Duration
}

// Load reads server configuration from .env file and environment variables
func Load() *Config {
	loadDotEnv()

	return &Config{
		App: AppConfig{
			Env:  getEnv("APP_ENV", "development"),
			Port: getEnv("APP_PORT", "8080"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "eventspot"),
			Password: getEnv("DB_PASSWORD", "eventspot"),
			Name:     getEnv("DB_NAME", "eventspot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: loadRedis(),
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "default-secret"),
			Expiry: getDuration("JWT_EXPIRY", 24*time.Hour),
		},
		CORS: CORSConfig{
			Origins: getList("CORS_ORIGINS", "http://localhost:3000"),
		},
		Push: PushConfig{
			Provider:        strings.ToLower(getEnv("PUSH_PROVIDER", "fcm")),
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			ServerKey:       getEnv("PUSH_SERVER_KEY", ""),
			Endpoint:        getEnv("PUSH_ENDPOINT", "https://fcm.googleapis.com/fcm/send"),
			Timeout:         getDuration("PUSH_TIMEOUT", 10*time.Second),
		},
	}
}

func loadRedis() RedisConfig {
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		db = 0
	}
	return RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       db,
	}
}

// loadDotEnv loads .env file (ignore error if not exists - e.g. in Docker)
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading from environment variables")
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil {
		return fallback
	}
	return d
}

func getList(key, fallback string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, fallback), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
