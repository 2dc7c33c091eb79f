// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the service configuration.
type Config struct {
	Addr            string
	Debug           bool
	Store           string // postgres or memory
	DatabaseURL     string
	RedisAddr       string
	NATSURL         string
	NATSRelay       bool // forward database notifications to NATS
	JWTSecret       string
	TokenExpiry     time.Duration
	FeedConcurrency int
	S3              S3
}

// S3 configures the bucket post images are uploaded to. Images are kept in
// memory when Bucket is empty.
type S3 struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
}

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// New returns a viper instance with the defaults set, reading COMMUNITY_
// prefixed environment variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("addr", ":8080")
	v.SetDefault("debug", false)
	v.SetDefault("store", StoreMemory)
	v.SetDefault("database_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_relay", true)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_expiry", 24*time.Hour)
	v.SetDefault("feed_concurrency", 8)
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.public_url", "")

	v.SetEnvPrefix("community")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load loads dotEnvPath into the environment if it exists and returns the
// configuration.
func Load(dotEnvPath string) (Config, error) {
	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("stat %s: %w", dotEnvPath, err)
		}
	}
	return FromViper(New())
}

// FromViper reads and checks the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Addr:            v.GetString("addr"),
		Debug:           v.GetBool("debug"),
		Store:           strings.ToLower(v.GetString("store")),
		DatabaseURL:     v.GetString("database_url"),
		RedisAddr:       v.GetString("redis_addr"),
		NATSURL:         v.GetString("nats_url"),
		NATSRelay:       v.GetBool("nats_relay"),
		JWTSecret:       v.GetString("jwt_secret"),
		TokenExpiry:     v.GetDuration("token_expiry"),
		FeedConcurrency: v.GetInt("feed_concurrency"),
		S3: S3{
			Bucket:    v.GetString("s3.bucket"),
			Region:    v.GetString("s3.region"),
			Endpoint:  v.GetString("s3.endpoint"),
			AccessKey: v.GetString("s3.access_key"),
			SecretKey: v.GetString("s3.secret_key"),
			PublicURL: v.GetString("s3.public_url"),
		},
	}

	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("store %s requires COMMUNITY_DATABASE_URL", cfg.Store)
		}
	default:
		return Config{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("COMMUNITY_JWT_SECRET is required")
	}
	if cfg.FeedConcurrency < 1 {
		return Config{}, fmt.Errorf("feed_concurrency must be positive, got %d", cfg.FeedConcurrency)
	}
	return cfg, nil
}
