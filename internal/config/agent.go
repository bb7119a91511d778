package config

import (
	"strings"
	"time"
)

// AgentConfig holds configuration for the client-resident background process
type AgentConfig struct {
	Agent AgentSettings
	Redis RedisConfig
	MinIO MinIOConfig
}

type AgentSettings struct {
	Listen string
	// Origin is the app host the agent proxies and precaches from.
	Origin string
	// Version tags the cache partitions of this deploy. Bump it per release.
	Version     string
	Manifest    []string
	OfflinePage string
	APIPrefix   string
	BypassHosts []string
	// Storage is one of "memory", "redis" or "minio".
	Storage       string
	SweepInterval time.Duration
	PublicKey     string
	APIBaseURL    string
	APIToken      string
	UserID        string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// DefaultManifest is the asset list precached on install.
var DefaultManifest = []string{
	"/",
	"/manifest.json",
	"/icons/icon-192.png",
	"/icons/icon-512.png",
	"/offline.html",
}

// DefaultBypassHosts are the realtime data provider hosts the agent never intercepts.
var DefaultBypassHosts = []string{
	"firestore.googleapis.com",
	"firebaseio.com",
	"firebasedatabase.app",
	"identitytoolkit.googleapis.com",
	"securetoken.googleapis.com",
}

// LoadAgent reads agent configuration from .env file and environment variables
func LoadAgent() *AgentConfig {
	loadDotEnv()

	return &AgentConfig{
		Agent: AgentSettings{
			Listen:        getEnv("AGENT_LISTEN", "127.0.0.1:8081"),
			Origin:        strings.TrimRight(getEnv("AGENT_ORIGIN", "http://localhost:3000"), "/"),
			Version:       getEnv("AGENT_CACHE_VERSION", "v1"),
			Manifest:      getList("AGENT_MANIFEST", strings.Join(DefaultManifest, ",")),
			OfflinePage:   getEnv("AGENT_OFFLINE_PAGE", "/offline.html"),
			APIPrefix:     getEnv("AGENT_API_PREFIX", "/api/"),
			BypassHosts:   getList("AGENT_BYPASS_HOSTS", strings.Join(DefaultBypassHosts, ",")),
			Storage:       strings.ToLower(getEnv("AGENT_STORAGE", "memory")),
			SweepInterval: getDuration("CACHE_SWEEP_INTERVAL", 0),
			PublicKey:     getEnv("PUSH_PUBLIC_KEY", ""),
			APIBaseURL:    strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080/api/v1"), "/"),
			APIToken:      getEnv("API_TOKEN", ""),
			UserID:        getEnv("AGENT_USER_ID", ""),
		},
		Redis: loadRedis(),
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_BUCKET", "eventspot-cache"),
			UseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
		},
	}
}
