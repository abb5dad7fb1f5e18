package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is read when present. Its absence is not an error.
const DefaultConfigFile = "config.yaml"

// ErrMissingDatabase is returned when neither DATABASE_URL nor the PG* settings
// identify a database to connect to.
var ErrMissingDatabase = errors.New("database connection info is missing")

// ErrMissingSessionSecret is returned outside local development when no
// SESSION_SECRET is configured.
var ErrMissingSessionSecret = errors.New("SESSION_SECRET must be set outside local development")

// Config holds all configuration for ekaya-tracker.
// Values come from config.yaml and environment variables, with environment
// variables taking precedence. Secrets are read from the environment only.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Derived from Port if empty
	Version  string `yaml:"-"`

	// TLS is enabled when both paths are set.
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// CookieDomain scopes the auth and session cookies. Derived from BaseURL if empty.
	CookieDomain string `yaml:"cookie_domain" env:"COOKIE_DOMAIN" env-default:""`

	// SessionSecret signs the selected-project cookie.
	SessionSecret string `yaml:"-" env:"SESSION_SECRET"`

	// ShutdownTimeoutSeconds bounds graceful HTTP shutdown.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" env:"SHUTDOWN_TIMEOUT_SECONDS" env-default:"15"`

	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Seed     SeedConfig     `yaml:"seed"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT signatures are checked against JWKS.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is parsed from JWKSEndpointsStr.
	JWKSEndpoints map[string]string `yaml:"-"`

	// Audience is the expected "aud" claim. Empty disables the check.
	Audience string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:"tracker"`
}

// DatabaseConfig holds PostgreSQL connection settings.
// URL wins over the individual fields when set.
type DatabaseConfig struct {
	URL            string `yaml:"-" env:"DATABASE_URL"`
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"tracker"`
	Password       string `yaml:"-" env:"PGPASSWORD"`
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"tracker"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// SeedConfig controls first-run fixture loading.
type SeedConfig struct {
	DemoProject bool `yaml:"demo_project" env:"SEED_DEMO_PROJECT" env-default:"false"`
}

// Load reads DefaultConfigFile (if present) with environment variable overrides.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigFile, version)
}

// LoadFile is Load with an explicit config path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" && !cfg.IsLocal() {
		return nil, ErrMissingSessionSecret
	}

	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// IsLocal reports whether the server runs in local development mode.
func (c *Config) IsLocal() bool {
	return c.Env == "local"
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddr, c.Port)
}

// validateTLS ensures both cert and key are provided together and exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// parseJWKSEndpoints parses "issuer1=url1,issuer2=url2" into a map.
// Malformed pairs are ignored.
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		issuer, jwksURL = strings.TrimSpace(issuer), strings.TrimSpace(jwksURL)
		if issuer == "" || jwksURL == "" {
			continue
		}
		endpoints[issuer] = jwksURL
	}
	return endpoints
}

// Validate fails when no database can be identified.
func (c *DatabaseConfig) Validate() error {
	if c.URL != "" {
		return nil
	}
	var missing []string
	if c.Host == "" {
		missing = append(missing, "PGHOST")
	}
	if c.User == "" {
		missing = append(missing, "PGUSER")
	}
	if c.Database == "" {
		missing = append(missing, "PGDATABASE")
	}
	if c.Port <= 0 {
		missing = append(missing, "PGPORT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set DATABASE_URL or %s", ErrMissingDatabase, strings.Join(missing, ", "))
	}
	return nil
}

// ConnectionString returns a postgres:// URL for pgx.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}
