package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Environment represents the application environment
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Provider defines the interface for configuration management
type Provider interface {
	// GetString retrieves a string configuration value
	GetString(ctx context.Context, key string) (string, error)
	// GetInt retrieves an integer configuration value
	GetInt(ctx context.Context, key string) (int, error)
	// GetBool retrieves a boolean configuration value
	GetBool(ctx context.Context, key string) (bool, error)
	// GetSecret retrieves a secret value
	GetSecret(ctx context.Context, key string) (string, error)
	// GetEnvironment returns the current environment
	GetEnvironment() Environment
}

// EnvProvider implements Provider using environment variables
type EnvProvider struct {
	prefix      string
	environment Environment
}

// NewEnvProvider creates a new environment-based configuration provider
func NewEnvProvider(prefix string) Provider {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = string(Development)
	}
	return &EnvProvider{
		prefix:      prefix,
		environment: Environment(env),
	}
}

// GetEnvironment returns the current environment
func (p *EnvProvider) GetEnvironment() Environment {
	return p.environment
}

// GetString retrieves a string configuration value from environment variables
func (p *EnvProvider) GetString(ctx context.Context, key string) (string, error) {
	value := os.Getenv(p.prefix + key)
	if value == "" {
		return "", fmt.Errorf("environment variable %s%s not set", p.prefix, key)
	}
	return value, nil
}

// GetInt retrieves an integer configuration value from environment variables
func (p *EnvProvider) GetInt(ctx context.Context, key string) (int, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

// GetBool retrieves a boolean configuration value from environment variables
func (p *EnvProvider) GetBool(ctx context.Context, key string) (bool, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}

// GetSecret retrieves a secret value from environment variables
func (p *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.GetString(ctx, key)
}

// SecretsManagerAPI is the subset of the Secrets Manager client used by AWSSecretsProvider
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// secretRefreshInterval is how long a fetched secret is served from memory
const secretRefreshInterval = 5 * time.Minute

// AWSSecretsProvider implements Provider using AWS Secrets Manager.
// Keys missing from the secret fall back to environment variables.
type AWSSecretsProvider struct {
	client      SecretsManagerAPI
	secretName  string
	fallback    Provider
	mu          sync.Mutex
	cache       map[string]string
	lastFetch   time.Time
	environment Environment
}

// NewAWSSecretsProvider creates a new AWS Secrets Manager based configuration provider
func NewAWSSecretsProvider(secretName string) (Provider, error) {
	// Load AWS configuration
	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSSecretsProviderWithClient(secretsmanager.NewFromConfig(cfg), secretName), nil
}

// NewAWSSecretsProviderWithClient creates a provider around an existing client
func NewAWSSecretsProviderWithClient(client SecretsManagerAPI, secretName string) *AWSSecretsProvider {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = string(Development)
	}

	return &AWSSecretsProvider{
		client:      client,
		secretName:  secretName,
		fallback:    NewEnvProvider(""),
		environment: Environment(env),
	}
}

// GetEnvironment returns the current environment
func (p *AWSSecretsProvider) GetEnvironment() Environment {
	return p.environment
}

// GetString retrieves a string configuration value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetString(ctx context.Context, key string) (string, error) {
	secrets, err := p.secrets(ctx)
	if err != nil {
		return "", err
	}

	if value, ok := secrets[key]; ok {
		return value, nil
	}
	if value, err := p.fallback.GetString(ctx, key); err == nil {
		return value, nil
	}
	return "", fmt.Errorf("secret key %s not found", key)
}

// secrets returns the parsed secret, fetching it when the cached copy is stale
func (p *AWSSecretsProvider) secrets(ctx context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache != nil && time.Since(p.lastFetch) < secretRefreshInterval {
		return p.cache, nil
	}

	secret, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	if secret.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", p.secretName)
	}

	var secretMap map[string]string
	if err := json.Unmarshal([]byte(*secret.SecretString), &secretMap); err != nil {
		return nil, fmt.Errorf("failed to parse secret JSON: %w", err)
	}

	if err := validateSecretSchema(secretMap, p.environment); err != nil {
		return nil, fmt.Errorf("invalid secret schema: %w", err)
	}

	p.cache = secretMap
	p.lastFetch = time.Now()
	return secretMap, nil
}

// GetInt retrieves an integer configuration value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetInt(ctx context.Context, key string) (int, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

// GetBool retrieves a boolean configuration value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetBool(ctx context.Context, key string) (bool, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}

// GetSecret retrieves a secret value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.GetString(ctx, key)
}

// Supported database drivers
const (
	DriverPostgres = "postgres" // github.com/lib/pq
	DriverPgx      = "pgx"      // github.com/jackc/pgx/v5/stdlib
	DriverSQLite   = "sqlite3"  // github.com/mattn/go-sqlite3
)

// DefaultLockTimeout bounds how long a mutation waits for row and group locks
const DefaultLockTimeout = 3 * time.Second

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver      string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	Path        string        // SQLite database file
	LockTimeout time.Duration // lock_timeout for Postgres, busy timeout for SQLite
}

// IsPostgres reports whether the configuration targets a Postgres server
func (c *DatabaseConfig) IsPostgres() bool {
	return c.Driver == DriverPostgres || c.Driver == DriverPgx
}

// Validate checks if the database configuration is valid
func (c *DatabaseConfig) Validate(env Environment) error {
	switch c.Driver {
	case DriverPostgres, DriverPgx:
	case DriverSQLite:
		if c.Path == "" {
			return &ValidationError{Field: "Path", Message: "path cannot be empty for sqlite3"}
		}
		if env == Production {
			return &ValidationError{Field: "Driver", Message: "sqlite3 is not allowed in production"}
		}
		return c.validateLockTimeout()
	default:
		return &ValidationError{Field: "Driver", Message: "driver must be one of postgres, pgx, sqlite3"}
	}

	if c.Host == "" {
		return &ValidationError{Field: "Host", Message: "host cannot be empty"}
	}

	// Validate host is a valid hostname or IP
	if host := net.ParseIP(c.Host); host == nil {
		if _, err := net.LookupHost(c.Host); err != nil {
			return &ValidationError{Field: "Host", Message: "invalid hostname or IP address"}
		}
	}

	if c.Port <= 0 || c.Port > 65535 {
		return &ValidationError{Field: "Port", Message: "port must be between 1 and 65535"}
	}

	if c.User == "" {
		return &ValidationError{Field: "User", Message: "user cannot be empty"}
	}

	if c.Password == "" {
		return &ValidationError{Field: "Password", Message: "password cannot be empty"}
	}

	if env == Production {
		if err := checkPasswordStrength("Password", c.Password); err != nil {
			return err
		}
	}

	if c.DBName == "" {
		return &ValidationError{Field: "DBName", Message: "database name cannot be empty"}
	}

	if !dbNamePattern.MatchString(c.DBName) {
		return &ValidationError{Field: "DBName", Message: "database name must start with a letter and contain only letters, numbers, and underscores"}
	}

	if !validSSLModes[c.SSLMode] {
		return &ValidationError{Field: "SSLMode", Message: "invalid SSL mode"}
	}

	// Require SSL in production
	if env == Production && c.SSLMode == "disable" {
		return &ValidationError{Field: "SSLMode", Message: "SSL cannot be disabled in production"}
	}

	return c.validateLockTimeout()
}

func (c *DatabaseConfig) validateLockTimeout() error {
	if c.LockTimeout <= 0 || c.LockTimeout > time.Minute {
		return &ValidationError{Field: "LockTimeout", Message: "lock timeout must be between 1ms and 1m"}
	}
	return nil
}

var dbNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

var validSSLModes = map[string]bool{
	"disable":     true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

var passwordRules = []struct {
	pattern *regexp.Regexp
	message string
}{
	{regexp.MustCompile(`[A-Z]`), "password must contain at least one uppercase letter in production"},
	{regexp.MustCompile(`[a-z]`), "password must contain at least one lowercase letter in production"},
	{regexp.MustCompile(`[0-9]`), "password must contain at least one number in production"},
	{regexp.MustCompile(`[^A-Za-z0-9]`), "password must contain at least one special character in production"},
}

// checkPasswordStrength applies the production password rules
func checkPasswordStrength(field, password string) error {
	if len(password) < 12 {
		return &ValidationError{Field: field, Message: "password must be at least 12 characters long in production"}
	}
	for _, rule := range passwordRules {
		if !rule.pattern.MatchString(password) {
			return &ValidationError{Field: field, Message: rule.message}
		}
	}
	return nil
}

// validateSecretSchema validates the structure of secrets stored in AWS Secrets Manager
func validateSecretSchema(secrets map[string]string, env Environment) error {
	requiredKeys := []string{
		"DB_HOST",
		"DB_PORT",
		"DB_USER",
		"DB_PASSWORD",
		"DB_NAME",
		"DB_SSLMODE",
	}

	// Check for required keys
	for _, key := range requiredKeys {
		if _, ok := secrets[key]; !ok {
			return &ValidationError{
				Field:   key,
				Message: "required secret key not found",
			}
		}
	}

	// Validate port is a number
	if _, err := strconv.Atoi(secrets["DB_PORT"]); err != nil {
		return &ValidationError{
			Field:   "DB_PORT",
			Message: "port must be a valid number",
		}
	}

	if !validSSLModes[secrets["DB_SSLMODE"]] {
		return &ValidationError{
			Field:   "DB_SSLMODE",
			Message: "invalid SSL mode",
		}
	}

	// Stricter validation for production
	if env == Production {
		// Validate host is not localhost in production
		if strings.ToLower(secrets["DB_HOST"]) == "localhost" {
			return &ValidationError{
				Field:   "DB_HOST",
				Message: "localhost is not allowed in production",
			}
		}

		// Validate SSL is enabled in production
		if secrets["DB_SSLMODE"] == "disable" {
			return &ValidationError{
				Field:   "DB_SSLMODE",
				Message: "SSL cannot be disabled in production",
			}
		}

		if err := checkPasswordStrength("DB_PASSWORD", secrets["DB_PASSWORD"]); err != nil {
			return err
		}
	}

	return nil
}

// GetDatabaseConfig retrieves database configuration using the provided config provider
func GetDatabaseConfig(ctx context.Context, provider Provider) (*DatabaseConfig, error) {
	driver, err := provider.GetString(ctx, "DB_DRIVER")
	if err != nil {
		driver = DriverPostgres // Default to lib/pq if not set
	}

	lockTimeout := DefaultLockTimeout
	if ms, err := provider.GetInt(ctx, "DB_LOCK_TIMEOUT_MS"); err == nil {
		lockTimeout = time.Duration(ms) * time.Millisecond
	}

	if driver == DriverSQLite {
		path, err := provider.GetString(ctx, "DB_PATH")
		if err != nil {
			return nil, fmt.Errorf("failed to get DB_PATH: %w", err)
		}
		cfg := &DatabaseConfig{Driver: driver, Path: path, LockTimeout: lockTimeout}
		if err := cfg.Validate(provider.GetEnvironment()); err != nil {
			return nil, fmt.Errorf("invalid database configuration: %w", err)
		}
		return cfg, nil
	}

	host, err := provider.GetString(ctx, "DB_HOST")
	if err != nil {
		return nil, fmt.Errorf("failed to get DB_HOST: %w", err)
	}

	port, err := provider.GetInt(ctx, "DB_PORT")
	if err != nil {
		return nil, fmt.Errorf("failed to get DB_PORT: %w", err)
	}

	user, err := provider.GetString(ctx, "DB_USER")
	if err != nil {
		return nil, fmt.Errorf("failed to get DB_USER: %w", err)
	}

	password, err := provider.GetSecret(ctx, "DB_PASSWORD")
	if err != nil {
		return nil, fmt.Errorf("failed to get DB_PASSWORD: %w", err)
	}

	dbname, err := provider.GetString(ctx, "DB_NAME")
	if err != nil {
		return nil, fmt.Errorf("failed to get DB_NAME: %w", err)
	}

	sslmode, err := provider.GetString(ctx, "DB_SSLMODE")
	if err != nil {
		sslmode = "disable" // Default to disable if not set
	}

	cfg := &DatabaseConfig{
		Driver:      driver,
		Host:        host,
		Port:        port,
		User:        user,
		Password:    password,
		DBName:      dbname,
		SSLMode:     sslmode,
		LockTimeout: lockTimeout,
	}

	// Validate configuration
	if err := cfg.Validate(provider.GetEnvironment()); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	return cfg, nil
}

// CacheConfig selects and tunes the tree cache backend
type CacheConfig struct {
	Backend   string // memory, redis or dynamodb
	RedisAddr string
	TTL       time.Duration
}

// GetCacheConfig retrieves cache configuration. Every key is optional.
func GetCacheConfig(ctx context.Context, provider Provider) *CacheConfig {
	cfg := &CacheConfig{Backend: "memory", TTL: 5 * time.Minute}

	if host, err := provider.GetString(ctx, "REDIS_HOST"); err == nil {
		port, err := provider.GetString(ctx, "REDIS_PORT")
		if err != nil {
			port = "6379"
		}
		cfg.Backend = "redis"
		cfg.RedisAddr = net.JoinHostPort(host, port)
	}
	if backend, err := provider.GetString(ctx, "CACHE_BACKEND"); err == nil {
		cfg.Backend = strings.ToLower(backend)
	}
	if secs, err := provider.GetInt(ctx, "CACHE_TTL_SECONDS"); err == nil && secs > 0 {
		cfg.TTL = time.Duration(secs) * time.Second
	}
	return cfg
}
