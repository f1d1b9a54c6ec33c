package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Session store backends understood by the CRM client.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// ClientConfig models ~/.config/crmctl/config.yaml.
type ClientConfig struct {
	BackendURL         string        `yaml:"backend_url"`
	Store              string        `yaml:"store"`
	StorePath          string        `yaml:"store_path"`
	RedisURL           string        `yaml:"redis_url"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	StayLoggedInTTL    time.Duration `yaml:"stay_logged_in_ttl"`
	RevalidateInterval time.Duration `yaml:"revalidate_interval"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	// Broadcast relays logouts to every other client sharing RedisURL.
	Broadcast   bool       `yaml:"broadcast"`
	GatewayAddr string     `yaml:"gateway_addr"`
	Environment string     `yaml:"environment"`
	OIDC        OIDCConfig `yaml:"oidc"`
}

type OIDCConfig struct {
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Enabled reports whether an OIDC provider is configured.
func (o OIDCConfig) Enabled() bool {
	return o.Issuer != "" && o.ClientID != ""
}

// DefaultClientDir is where the client keeps its config and session file.
func DefaultClientDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "crmctl")
	}
	return ".crmctl"
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		BackendURL:         "http://localhost:8080",
		Store:              StoreFile,
		StorePath:          filepath.Join(DefaultClientDir(), "session.json"),
		IdleTimeout:        60 * time.Minute,
		StayLoggedInTTL:    30 * 24 * time.Hour,
		RevalidateInterval: time.Minute,
		RequestTimeout:     10 * time.Second,
		GatewayAddr:        "127.0.0.1:7070",
		Environment:        "production",
	}
}

// LoadClient reads the YAML file at path, when it exists, over the defaults
// and then applies CRM_* environment overrides. An empty path means the
// default location.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := defaultClientConfig()

	if path == "" {
		path = filepath.Join(DefaultClientDir(), "config.yaml")
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.BackendURL = getEnv("CRM_BACKEND_URL", cfg.BackendURL)
	cfg.Store = getEnv("CRM_STORE", cfg.Store)
	cfg.StorePath = getEnv("CRM_STORE_PATH", cfg.StorePath)
	cfg.RedisURL = getEnv("CRM_REDIS_URL", cfg.RedisURL)
	cfg.IdleTimeout = getDurationEnv("CRM_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.StayLoggedInTTL = getDurationEnv("CRM_STAY_LOGGED_IN_TTL", cfg.StayLoggedInTTL)
	cfg.RevalidateInterval = getDurationEnv("CRM_REVALIDATE_INTERVAL", cfg.RevalidateInterval)
	cfg.RequestTimeout = getDurationEnv("CRM_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.Broadcast = getBoolEnv("CRM_BROADCAST", cfg.Broadcast)
	cfg.GatewayAddr = getEnv("CRM_GATEWAY_ADDR", cfg.GatewayAddr)
	cfg.Environment = getEnv("CRM_ENV", cfg.Environment)
	cfg.OIDC.Issuer = getEnv("CRM_OIDC_ISSUER", cfg.OIDC.Issuer)
	cfg.OIDC.ClientID = getEnv("CRM_OIDC_CLIENT_ID", cfg.OIDC.ClientID)
	cfg.OIDC.ClientSecret = getEnv("CRM_OIDC_CLIENT_SECRET", cfg.OIDC.ClientSecret)
	cfg.OIDC.RedirectURL = getEnv("CRM_OIDC_REDIRECT_URL", cfg.OIDC.RedirectURL)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ClientConfig) validate() error {
	switch c.Store {
	case StoreFile:
		if c.StorePath == "" {
			return errors.New("store_path is required for the file store")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url is required for the redis store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want file, redis or memory)", c.Store)
	}
	if c.Broadcast && c.RedisURL == "" {
		return errors.New("broadcast requires redis_url")
	}
	if c.BackendURL == "" {
		return errors.New("backend_url is required")
	}
	if c.RequestTimeout <= 0 || c.RevalidateInterval <= 0 {
		return errors.New("request_timeout and revalidate_interval must be positive")
	}
	return nil
}
