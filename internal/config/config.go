// Package config loads server settings from the environment.
//
// LOAD ORDER:
//  1. An optional env file (default ".env") is loaded with godotenv. Values
//     already present in the process environment win over the file.
//  2. cleanenv reads the environment into Config, applying env-default tags.
//  3. Validate checks cross-field rules and reports every problem at once.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	BackendSQLite = "sqlite"
	BackendHosted = "hosted"

	minJWTSecretLength = 16
)

// Config is every setting the server reads.
type Config struct {
	Env   string `env:"APP_ENV" env-default:"local" env-description:"local, dev or prod"`
	Port  int    `env:"PORT" env-default:"8080"`
	Debug bool   `env:"DEBUG" env-default:"false"`

	Daily    DailyConfig
	Store    StoreConfig
	Auth     AuthConfig
	Google   GoogleConfig
	Presence PresenceConfig
}

type DailyConfig struct {
	APIKey            string `env:"DAILY_API_KEY" env-description:"Daily.co REST API key"`
	APIURL            string `env:"DAILY_API_URL" env-default:"https://api.daily.co/v1"`
	Domain            string `env:"DAILY_DOMAIN" env-description:"Daily subdomain, <domain>.daily.co"`
	MaxRoomSize       int    `env:"MAX_ROOM_SIZE" env-default:"100"`
	RoomExpiryMinutes int    `env:"ROOM_EXPIRY_MINUTES" env-default:"60"`
}

// RoomTTL is how long a created room lives at the provider.
func (d DailyConfig) RoomTTL() time.Duration {
	return time.Duration(d.RoomExpiryMinutes) * time.Minute
}

type StoreConfig struct {
	Backend         string `env:"STORE_BACKEND" env-default:"sqlite" env-description:"sqlite or hosted"`
	DBPath          string `env:"DB_PATH" env-default:"data/hangout.db"`
	SupabaseURL     string `env:"SUPABASE_URL"`
	SupabaseAnonKey string `env:"SUPABASE_ANON_KEY"`
}

type AuthConfig struct {
	JWTSecret          string        `env:"JWT_SECRET"`
	DevLogin           bool          `env:"AUTH_DEV_LOGIN" env-default:"false"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" env-default:"12h"`
}

type GoogleConfig struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURI  string `env:"GOOGLE_REDIRECT_URI"`
}

// Enabled reports whether Google sign-in can be offered.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type PresenceConfig struct {
	RedisURL          string        `env:"REDIS_URL"`
	HeartbeatTTL      time.Duration `env:"HEARTBEAT_TTL" env-default:"2m"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" env-default:"1m"`
}

// Load reads envFile (if it exists) and the environment, then validates.
// An empty envFile means ".env". A missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns every configuration problem joined into one error.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format, args...))
	}

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		add("APP_ENV must be local, dev or prod, got %q", c.Env)
	}
	if c.Port < 1 || c.Port > 65535 {
		add("PORT must be between 1 and 65535, got %d", c.Port)
	}

	if c.Daily.APIKey == "" {
		add("DAILY_API_KEY is required")
	}
	if c.Daily.MaxRoomSize < 1 {
		add("MAX_ROOM_SIZE must be positive, got %d", c.Daily.MaxRoomSize)
	}
	if c.Daily.RoomExpiryMinutes < 1 {
		add("ROOM_EXPIRY_MINUTES must be positive, got %d", c.Daily.RoomExpiryMinutes)
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.DBPath == "" {
			add("DB_PATH is required with the sqlite backend")
		}
	case BackendHosted:
		if c.Store.SupabaseURL == "" || c.Store.SupabaseAnonKey == "" {
			add("SUPABASE_URL and SUPABASE_ANON_KEY are required with the hosted backend")
		} else if u, err := url.Parse(c.Store.SupabaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("SUPABASE_URL is not a valid URL: %q", c.Store.SupabaseURL)
		}
	default:
		add("STORE_BACKEND must be sqlite or hosted, got %q", c.Store.Backend)
	}

	if len(c.Auth.JWTSecret) < minJWTSecretLength {
		add("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if c.Auth.SessionIdleTimeout < 0 {
		add("SESSION_IDLE_TIMEOUT must not be negative")
	}

	if c.Presence.HeartbeatTTL <= 0 {
		add("HEARTBEAT_TTL must be positive")
	}
	if c.Presence.ReconcileInterval <= 0 {
		add("RECONCILE_INTERVAL must be positive")
	}

	return errors.Join(errs...)
}

// Warnings lists non-fatal problems worth printing at startup or from the
// verify command.
func (c *Config) Warnings() []string {
	var w []string
	if !c.Google.Enabled() && !c.Auth.DevLogin {
		w = append(w, "neither Google OAuth nor AUTH_DEV_LOGIN is configured: nobody can log in")
	}
	if c.Google.Enabled() {
		switch {
		case c.Google.RedirectURI == "":
			w = append(w, "GOOGLE_REDIRECT_URI is empty: the callback URL will be derived from PORT")
		case c.Env == EnvProd && strings.Contains(c.Google.RedirectURI, "localhost"):
			w = append(w, "GOOGLE_REDIRECT_URI points at localhost in prod")
		case c.Env == EnvProd && strings.HasPrefix(c.Google.RedirectURI, "http://"):
			w = append(w, "GOOGLE_REDIRECT_URI is not https in prod")
		}
	}
	if c.Daily.Domain == "" {
		w = append(w, "DAILY_DOMAIN is empty: joining a call looks the room URL up at Daily")
	}
	if c.Presence.RedisURL == "" {
		w = append(w, "REDIS_URL is empty: heartbeats are kept in process memory")
	}
	if c.Auth.DevLogin && c.Env == EnvProd {
		w = append(w, "AUTH_DEV_LOGIN is enabled in prod: anyone can log in as any email")
	}
	return w
}

// GoogleRedirectURI returns the configured redirect or a localhost default.
func (c *Config) GoogleRedirectURI() string {
	if c.Google.RedirectURI != "" {
		return c.Google.RedirectURI
	}
	return fmt.Sprintf("http://localhost:%d/auth/google/callback", c.Port)
}
