// Package config provides configuration loading and management for the gateway.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-gateway/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by the gateway
const EnvPrefix = "THV_GATEWAY"

const (
	// AuthModeJWT validates bearer tokens and enforces the admin role on admin routes
	AuthModeJWT = "jwt"

	// AuthModeAnonymous leaves admin routes open; intended for local development only
	AuthModeAnonymous = "anonymous"
)

const (
	defaultModulesPath       = "./modules"
	defaultReloadDebounce    = 500 * time.Millisecond
	defaultAccessCacheTTL    = 60 * time.Second
	defaultStoreTimeout      = 5 * time.Second
	defaultPrincipalCacheTTL = 30 * time.Second
	defaultMailboxSize       = 16
	defaultHeartbeatInterval = 30 * time.Second
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Modules   ModulesConfig     `yaml:"modules"`
	Catalog   CatalogConfig     `yaml:"catalog,omitempty"`
	Access    AccessConfig      `yaml:"access,omitempty"`
	Auth      AuthConfig        `yaml:"auth,omitempty"`
	Events    EventsConfig      `yaml:"events,omitempty"`
	Database  *DatabaseConfig   `yaml:"database,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// ModulesConfig describes where endpoint modules are discovered and how reloads are triggered
type ModulesConfig struct {
	// Path is the directory holding module manifests
	Path string `yaml:"path"`

	// Skip lists manifest file names that are never loaded
	Skip []string `yaml:"skip,omitempty"`

	// Watch enables filesystem-triggered hot reloads
	Watch bool `yaml:"watch,omitempty"`

	// Debounce is the quiet window before a burst of file events causes a reload (e.g. "500ms")
	Debounce string `yaml:"debounce,omitempty"`
}

// CatalogConfig controls catalog synchronization
type CatalogConfig struct {
	// SyncOnStartup runs one catalog sync pass once the first generation is published
	SyncOnStartup bool `yaml:"syncOnStartup,omitempty"`

	// SyncOnReload runs a catalog sync pass after every successful watched reload
	SyncOnReload bool `yaml:"syncOnReload,omitempty"`
}

// AccessConfig controls the access decision cache
type AccessConfig struct {
	// CacheTTL is how long the protected endpoint list is served before a refetch (e.g. "60s")
	CacheTTL string `yaml:"cacheTTL,omitempty"`

	// StoreTimeout bounds every durable store call made by the gateway (e.g. "5s")
	StoreTimeout string `yaml:"storeTimeout,omitempty"`
}

// AuthConfig controls request authentication
type AuthConfig struct {
	// Mode is either "jwt" (default) or "anonymous"
	Mode string `yaml:"mode,omitempty"`

	// JWTSecretFile is the path to a file holding the HMAC signing secret
	JWTSecretFile string `yaml:"jwtSecretFile,omitempty"`

	// PrincipalCacheTTL bounds how long a resolved user is reused (e.g. "30s")
	PrincipalCacheTTL string `yaml:"principalCacheTTL,omitempty"`
}

// EventsConfig controls change notification fan-out
type EventsConfig struct {
	// MailboxSize is the number of undelivered events a subscriber may hold before it is pruned
	MailboxSize int `yaml:"mailboxSize,omitempty"`

	// Heartbeat is the interval of keep-alive frames on streaming transports (e.g. "30s")
	Heartbeat string `yaml:"heartbeat,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`

	// DynamicAuth replaces the static password with short-lived tokens
	DynamicAuth *DynamicAuthConfig `yaml:"dynamicAuth,omitempty"`
}

// DynamicAuthConfig selects a dynamic database authentication method
type DynamicAuthConfig struct {
	// AWSRDSIAM authenticates with AWS RDS IAM tokens
	AWSRDSIAM *AWSRDSIAMConfig `yaml:"awsRdsIam,omitempty"`
}

// AWSRDSIAMConfig configures AWS RDS IAM authentication
type AWSRDSIAMConfig struct {
	// Region is the AWS region of the database, or "detect" to read it from
	// the instance metadata service
	Region string `yaml:"region"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	durations := map[string]string{
		"modules.debounce":       c.Modules.Debounce,
		"access.cacheTTL":        c.Access.CacheTTL,
		"access.storeTimeout":    c.Access.StoreTimeout,
		"auth.principalCacheTTL": c.Auth.PrincipalCacheTTL,
		"events.heartbeat":       c.Events.Heartbeat,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s must be a valid duration (e.g., '500ms', '1m'): %w", field, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", field, value)
		}
	}

	switch c.Auth.Mode {
	case "", AuthModeJWT, AuthModeAnonymous:
	default:
		return fmt.Errorf("auth.mode must be %q or %q, got %q", AuthModeJWT, AuthModeAnonymous, c.Auth.Mode)
	}

	if c.Events.MailboxSize < 0 {
		return fmt.Errorf("events.mailboxSize cannot be negative")
	}

	if c.Database != nil {
		if err := c.Database.validate(); err != nil {
			return err
		}
	}

	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	return nil
}

// GetModulesPath returns the manifest directory, defaulting to ./modules
func (c *Config) GetModulesPath() string {
	if c.Modules.Path == "" {
		return defaultModulesPath
	}
	return c.Modules.Path
}

// GetDebounce returns the reload debounce window
func (c *Config) GetDebounce() time.Duration {
	return parseDurationOr(c.Modules.Debounce, defaultReloadDebounce)
}

// GetAccessCacheTTL returns the TTL of the protected endpoint cache
func (c *Config) GetAccessCacheTTL() time.Duration {
	return parseDurationOr(c.Access.CacheTTL, defaultAccessCacheTTL)
}

// GetStoreTimeout returns the bound applied to durable store calls
func (c *Config) GetStoreTimeout() time.Duration {
	return parseDurationOr(c.Access.StoreTimeout, defaultStoreTimeout)
}

// GetPrincipalCacheTTL returns how long resolved users are cached
func (c *Config) GetPrincipalCacheTTL() time.Duration {
	return parseDurationOr(c.Auth.PrincipalCacheTTL, defaultPrincipalCacheTTL)
}

// GetAuthMode returns the authentication mode, defaulting to jwt
func (c *Config) GetAuthMode() string {
	if c.Auth.Mode == "" {
		return AuthModeJWT
	}
	return c.Auth.Mode
}

// GetMailboxSize returns the per-subscriber event buffer size
func (c *Config) GetMailboxSize() int {
	if c.Events.MailboxSize == 0 {
		return defaultMailboxSize
	}
	return c.Events.MailboxSize
}

// GetHeartbeat returns the keep-alive interval for streaming subscribers
func (c *Config) GetHeartbeat() time.Duration {
	return parseDurationOr(c.Events.Heartbeat, defaultHeartbeatInterval)
}

// GetJWTSecret returns the token signing secret using the following priority:
// 1. Read from JWTSecretFile if specified
// 2. Read from THV_GATEWAY_JWT_SECRET environment variable
func (a *AuthConfig) GetJWTSecret() ([]byte, error) {
	if a.JWTSecretFile != "" {
		data, err := os.ReadFile(filepath.Clean(a.JWTSecretFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read JWT secret from file %s: %w", a.JWTSecretFile, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return nil, fmt.Errorf("JWT secret file %s is empty", a.JWTSecretFile)
		}
		return []byte(secret), nil
	}

	if envSecret := os.Getenv(EnvPrefix + "_JWT_SECRET"); envSecret != "" {
		return []byte(envSecret), nil
	}

	return nil, fmt.Errorf("no JWT secret configured: set auth.jwtSecretFile or %s_JWT_SECRET", EnvPrefix)
}

func (d *DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if d.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if d.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			return fmt.Errorf("database.connMaxLifetime must be a valid duration: %w", err)
		}
	}
	if d.DynamicAuth != nil {
		if d.DynamicAuth.AWSRDSIAM == nil {
			return fmt.Errorf("database.dynamicAuth requires a method (awsRdsIam)")
		}
		if d.DynamicAuth.AWSRDSIAM.Region == "" {
			return fmt.Errorf("database.dynamicAuth.awsRdsIam.region is required")
		}
	}
	return nil
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from THV_GATEWAY_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection URL with the static
// password. With dynamic auth the URL carries no password; the caller supplies a
// token, see BuildConnectionString.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	if d.DynamicAuth != nil {
		return d.BuildConnectionString(""), nil
	}
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}
	return d.BuildConnectionString(password), nil
}

// BuildConnectionString builds a PostgreSQL connection URL with password, which
// is URL-escaped. An empty password is left out.
func (d *DatabaseConfig) BuildConnectionString(password string) string {
	userInfo := url.QueryEscape(d.User)
	if password != "" {
		userInfo += ":" + url.QueryEscape(password)
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s@%s:%d/%s?sslmode=%s",
		userInfo,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
