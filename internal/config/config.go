package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Database    DatabaseConfig  `yaml:"database" envPrefix:"DB_"`
	WorkOS      WorkOSConfig    `yaml:"workos" envPrefix:"WORKOS_"`
	Session     SessionConfig   `yaml:"session" envPrefix:"SESSION_"`
	NATS        NATSConfig      `yaml:"nats" envPrefix:"NATS_"`
	Telemetry   TelemetryConfig `yaml:"telemetry" envPrefix:"OTEL_"`
	Log         LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Bootstrap   BootstrapConfig `yaml:"bootstrap" envPrefix:"BOOTSTRAP_"`
	PublicPaths []string        `yaml:"public_paths" env:"PUBLIC_PATHS" envSeparator:","`
	Apps        []ConnectedApp  `yaml:"apps" envPrefix:"APPS_"`
}

type ServerConfig struct {
	Host           string   `yaml:"host" env:"HOST"`
	Port           int      `yaml:"port" env:"PORT"`
	Mode           string   `yaml:"mode" env:"MODE"`
	PublicURL      string   `yaml:"public_url" env:"PUBLIC_URL"`
	FrontendDir    string   `yaml:"frontend_dir" env:"FRONTEND_DIR"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type DatabaseConfig struct {
	Type     string         `yaml:"type" env:"TYPE"`
	SQLite   SQLiteConfig   `yaml:"sqlite" envPrefix:"SQLITE_"`
	MySQL    MySQLConfig    `yaml:"mysql" envPrefix:"MYSQL_"`
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

type MySQLConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Username string `yaml:"username" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Database string `yaml:"database" env:"DATABASE"`
	Charset  string `yaml:"charset" env:"CHARSET"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn" env:"DSN"`
}

// WorkOSConfig points at the hosted identity provider.
type WorkOSConfig struct {
	ClientID         string        `yaml:"client_id" env:"CLIENT_ID"`
	APIKey           string        `yaml:"api_key" env:"API_KEY"`
	APIBaseURL       string        `yaml:"api_base_url" env:"API_BASE_URL"`
	RedirectURI      string        `yaml:"redirect_uri" env:"REDIRECT_URI"`
	WebhookSecret    string        `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`
	WebhookTolerance time.Duration `yaml:"webhook_tolerance" env:"WEBHOOK_TOLERANCE"`
}

type SessionConfig struct {
	CookieName     string        `yaml:"cookie_name" env:"COOKIE_NAME"`
	CookieDomain   string        `yaml:"cookie_domain" env:"COOKIE_DOMAIN"`
	CookiePassword string        `yaml:"cookie_password" env:"COOKIE_PASSWORD"`
	MaxAge         time.Duration `yaml:"max_age" env:"MAX_AGE"`
	Secure         bool          `yaml:"secure" env:"SECURE"`
	TouchInterval  time.Duration `yaml:"touch_interval" env:"TOUCH_INTERVAL"`
}

type NATSConfig struct {
	URL    string `yaml:"url" env:"URL"`
	Stream string `yaml:"stream" env:"STREAM"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // console, json
}

// BootstrapConfig lists identities that are promoted to admin on first sight.
type BootstrapConfig struct {
	AdminEmails  []string `yaml:"admin_emails" env:"ADMIN_EMAILS" envSeparator:","`
	AdminAuthIDs []string `yaml:"admin_auth_ids" env:"ADMIN_AUTH_IDS" envSeparator:","`
}

// ConnectedApp is an entry of the static connected-apps catalog.
type ConnectedApp struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	IconURL     string `yaml:"icon_url" json:"iconUrl"`
}

// DefaultPublicPaths are reachable without a session.
var DefaultPublicPaths = []string{
	"/",
	"/callback",
	"/api/me",
	"/login",
	"/logout",
	"/api/auth/signout",
	"/api/health",
	"/workos/webhook",
	"/assets/*",
	"/favicon.ico",
}

// DefaultApps is the catalog shown on the dashboard when none is configured.
var DefaultApps = []ConnectedApp{
	{ID: "learning-platform", Name: "NexusLearn", Description: "AI-powered learning platform", IconURL: "/icons/nexuslearn.svg"},
	{ID: "portfolio", Name: "Portfolio", Description: "Developer portfolio", IconURL: "/icons/portfolio.svg"},
	{ID: "stock-management", Name: "Stock Manager", Description: "Inventory tracking system", IconURL: "/icons/stock.svg"},
}

var Global *Config

// Load reads the configuration file and environment variables
func Load(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "AUTH_"}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure data directory exists for SQLite
	if cfg.Database.Type == "sqlite" {
		dataDir := filepath.Dir(cfg.Database.SQLite.Path)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	Global = &cfg
	return &cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Server.FrontendDir == "" {
		c.Server.FrontendDir = filepath.Join("web", "dist")
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = filepath.Join("data", "auth.db")
	}
	if c.Database.MySQL.Port == 0 {
		c.Database.MySQL.Port = 3306
	}
	if c.Database.MySQL.Charset == "" {
		c.Database.MySQL.Charset = "utf8mb4"
	}
	if c.WorkOS.APIBaseURL == "" {
		c.WorkOS.APIBaseURL = "https://api.workos.com"
	}
	if c.WorkOS.WebhookTolerance == 0 {
		c.WorkOS.WebhookTolerance = 5 * time.Minute
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "wos-session"
	}
	if c.Session.MaxAge == 0 {
		c.Session.MaxAge = 400 * 24 * time.Hour
	}
	if c.Session.TouchInterval == 0 {
		c.Session.TouchInterval = 5 * time.Minute
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "IDENTITY"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "pcstyle-auth"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if len(c.PublicPaths) == 0 {
		c.PublicPaths = append([]string(nil), DefaultPublicPaths...)
	}
	if len(c.Apps) == 0 {
		c.Apps = append([]ConnectedApp(nil), DefaultApps...)
	}
}

// Validate checks settings that have no sensible default.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite":
	case "mysql":
		if c.Database.MySQL.Username == "" {
			return fmt.Errorf("MySQL username is required")
		}
		if c.Database.MySQL.Database == "" {
			return fmt.Errorf("MySQL database name is required")
		}
	case "postgres":
		if c.Database.Postgres.DSN == "" {
			return fmt.Errorf("Postgres DSN is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.WorkOS.ClientID == "" {
		return fmt.Errorf("WorkOS client id is required")
	}
	if c.WorkOS.WebhookSecret == "" && c.Server.Mode != "debug" {
		return fmt.Errorf("WorkOS webhook secret is required outside debug mode")
	}
	if len(c.Session.CookiePassword) < 32 {
		return fmt.Errorf("session cookie password must be at least 32 characters")
	}

	return nil
}
