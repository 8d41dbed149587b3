package config

import (
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const defaultAPIBaseURL = "https://app.getswipe.in/api/public"

type Config struct {
	Server       ServerConfig
	OTLP         OTLPConfig
	Catalog      CatalogConfig
	Storage      StorageConfig
	Connectivity ConnectivityConfig
	Log          LogConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type OTLPConfig struct {
	Endpoint      string
	ServiceName   string
	Environment   string
	ExportEnabled bool
}

type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

type StorageConfig struct {
	Driver string
	Path   string
}

type ConnectivityConfig struct {
	ProbeAddr     string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

type LogConfig struct {
	File string
}

// LoadConfig loads configuration from environment variables, reading an
// optional .env file first
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	baseURL := getEnv("CATALOG_API_BASE_URL", defaultAPIBaseURL)

	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "127.0.0.1"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		OTLP: OTLPConfig{
			Endpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:   getEnv("OTEL_SERVICE_NAME", "offline-catalog"),
			Environment:   getEnv("OTEL_ENVIRONMENT", "development"),
			ExportEnabled: getEnvBool("OTEL_EXPORT_ENABLED", false),
		},
		Catalog: CatalogConfig{
			BaseURL: baseURL,
			Timeout: getEnvDuration("CATALOG_HTTP_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", "bolt"),
			Path:   getEnv("STORAGE_PATH", "catalog.db"),
		},
		Connectivity: ConnectivityConfig{
			ProbeAddr:     getEnv("CONNECTIVITY_PROBE_ADDR", probeAddrFromURL(baseURL)),
			ProbeInterval: getEnvDuration("CONNECTIVITY_PROBE_INTERVAL", 5*time.Second),
			ProbeTimeout:  getEnvDuration("CONNECTIVITY_PROBE_TIMEOUT", 2*time.Second),
		},
		Log: LogConfig{
			File: getEnv("LOG_FILE", ""),
		},
	}
}

// probeAddrFromURL derives host:port of the API for reachability checks
func probeAddrFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
