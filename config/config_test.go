package config

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPostgres() *DatabaseConfig {
	return &DatabaseConfig{
		Driver:      DriverPostgres,
		Host:        "127.0.0.1",
		Port:        5432,
		User:        "tree",
		Password:    "Sup3r$ecretPass",
		DBName:      "ordered_tree",
		SSLMode:     "require",
		LockTimeout: DefaultLockTimeout,
	}
}

func TestDatabaseConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *DatabaseConfig)
		env    Environment
		field  string
	}{
		{name: "valid", mutate: func(c *DatabaseConfig) {}, env: Production},
		{name: "pgx driver", mutate: func(c *DatabaseConfig) { c.Driver = DriverPgx }, env: Development},
		{name: "unknown driver", mutate: func(c *DatabaseConfig) { c.Driver = "mysql" }, env: Development, field: "Driver"},
		{name: "empty host", mutate: func(c *DatabaseConfig) { c.Host = "" }, env: Development, field: "Host"},
		{name: "bad port", mutate: func(c *DatabaseConfig) { c.Port = 70000 }, env: Development, field: "Port"},
		{name: "empty user", mutate: func(c *DatabaseConfig) { c.User = "" }, env: Development, field: "User"},
		{name: "weak production password", mutate: func(c *DatabaseConfig) { c.Password = "short" }, env: Production, field: "Password"},
		{name: "weak password outside production", mutate: func(c *DatabaseConfig) { c.Password = "short" }, env: Development},
		{name: "bad db name", mutate: func(c *DatabaseConfig) { c.DBName = "1tree" }, env: Development, field: "DBName"},
		{name: "bad ssl mode", mutate: func(c *DatabaseConfig) { c.SSLMode = "maybe" }, env: Development, field: "SSLMode"},
		{name: "ssl disabled in production", mutate: func(c *DatabaseConfig) { c.SSLMode = "disable" }, env: Production, field: "SSLMode"},
		{name: "zero lock timeout", mutate: func(c *DatabaseConfig) { c.LockTimeout = 0 }, env: Development, field: "LockTimeout"},
		{name: "sqlite", mutate: func(c *DatabaseConfig) { *c = DatabaseConfig{Driver: DriverSQLite, Path: "tree.db", LockTimeout: time.Second} }, env: Development},
		{name: "sqlite without path", mutate: func(c *DatabaseConfig) { *c = DatabaseConfig{Driver: DriverSQLite, LockTimeout: time.Second} }, env: Development, field: "Path"},
		{name: "sqlite in production", mutate: func(c *DatabaseConfig) { *c = DatabaseConfig{Driver: DriverSQLite, Path: "tree.db", LockTimeout: time.Second} }, env: Production, field: "Driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validPostgres()
			tt.mutate(cfg)
			err := cfg.Validate(tt.env)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestGetDatabaseConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("postgres from environment", func(t *testing.T) {
		t.Setenv("APP_ENV", "development")
		t.Setenv("TEST_DB_HOST", "127.0.0.1")
		t.Setenv("TEST_DB_PORT", "5433")
		t.Setenv("TEST_DB_USER", "tree")
		t.Setenv("TEST_DB_PASSWORD", "secret")
		t.Setenv("TEST_DB_NAME", "ordered_tree")
		t.Setenv("TEST_DB_LOCK_TIMEOUT_MS", "250")

		cfg, err := GetDatabaseConfig(ctx, NewEnvProvider("TEST_"))
		require.NoError(t, err)
		assert.Equal(t, DriverPostgres, cfg.Driver)
		assert.Equal(t, 5433, cfg.Port)
		assert.Equal(t, "disable", cfg.SSLMode)
		assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
	})

	t.Run("sqlite", func(t *testing.T) {
		t.Setenv("APP_ENV", "development")
		t.Setenv("TEST_DB_DRIVER", "sqlite3")
		t.Setenv("TEST_DB_PATH", "/tmp/tree.db")

		cfg, err := GetDatabaseConfig(ctx, NewEnvProvider("TEST_"))
		require.NoError(t, err)
		assert.Equal(t, "/tmp/tree.db", cfg.Path)
		assert.Equal(t, DefaultLockTimeout, cfg.LockTimeout)
	})

	t.Run("missing host", func(t *testing.T) {
		t.Setenv("APP_ENV", "development")
		_, err := GetDatabaseConfig(ctx, NewEnvProvider("MISSING_"))
		assert.ErrorContains(t, err, "DB_HOST")
	})
}

func TestGetCacheConfig(t *testing.T) {
	ctx := context.Background()

	cfg := GetCacheConfig(ctx, NewEnvProvider("NOCACHE_"))
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, 5*time.Minute, cfg.TTL)

	t.Setenv("CACHE_REDIS_HOST", "redis")
	t.Setenv("CACHE_CACHE_TTL_SECONDS", "30")
	cfg = GetCacheConfig(ctx, NewEnvProvider("CACHE_"))
	assert.Equal(t, "redis", cfg.Backend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.TTL)

	t.Setenv("CACHE_CACHE_BACKEND", "DynamoDB")
	cfg = GetCacheConfig(ctx, NewEnvProvider("CACHE_"))
	assert.Equal(t, "dynamodb", cfg.Backend)
}

type fakeSecrets struct {
	value string
	err   error
	calls int
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.value)}, nil
}

const secretJSON = `{"DB_HOST":"10.0.0.5","DB_PORT":"5432","DB_USER":"tree","DB_PASSWORD":"secret","DB_NAME":"ordered_tree","DB_SSLMODE":"require"}`

func TestAWSSecretsProvider(t *testing.T) {
	ctx := context.Background()
	t.Setenv("APP_ENV", "staging")
	t.Setenv("ONLY_IN_ENV", "fallback")

	client := &fakeSecrets{value: secretJSON}
	p := NewAWSSecretsProviderWithClient(client, "tree/db")
	assert.Equal(t, Staging, p.GetEnvironment())

	host, err := p.GetString(ctx, "DB_HOST")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", host)

	port, err := p.GetInt(ctx, "DB_PORT")
	require.NoError(t, err)
	assert.Equal(t, 5432, port)

	v, err := p.GetString(ctx, "ONLY_IN_ENV")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	_, err = p.GetString(ctx, "NOWHERE")
	assert.Error(t, err)

	assert.Equal(t, 1, client.calls, "secret is fetched once and served from memory")
}

func TestAWSSecretsProvider_Errors(t *testing.T) {
	ctx := context.Background()
	t.Setenv("APP_ENV", "production")

	p := NewAWSSecretsProviderWithClient(&fakeSecrets{err: errors.New("access denied")}, "tree/db")
	_, err := p.GetString(ctx, "DB_HOST")
	assert.ErrorContains(t, err, "access denied")

	p = NewAWSSecretsProviderWithClient(&fakeSecrets{value: "not json"}, "tree/db")
	_, err = p.GetString(ctx, "DB_HOST")
	assert.ErrorContains(t, err, "parse secret")

	// Production rejects a localhost host
	local := strings.Replace(secretJSON, "10.0.0.5", "localhost", 1)
	p = NewAWSSecretsProviderWithClient(&fakeSecrets{value: local}, "tree/db")
	_, err = p.GetString(ctx, "DB_HOST")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "DB_HOST", vErr.Field)
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("environment only", func(t *testing.T) {
		t.Setenv(SecretNameEnv, "")
		p, err := NewProvider("TEST_")
		require.NoError(t, err)
		assert.IsType(t, &EnvProvider{}, p)
	})

	t.Run("secret first then prefixed environment", func(t *testing.T) {
		t.Setenv("APP_ENV", "development")
		t.Setenv("TEST_DB_HOST", "ignored")
		t.Setenv("TEST_CACHE_TTL_SECONDS", "30")

		p := NewProviderWithClient(&fakeSecrets{value: secretJSON}, "tree/db", "TEST_")
		assert.Equal(t, Development, p.GetEnvironment())

		cfg, err := GetDatabaseConfig(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.5", cfg.Host)
		assert.Equal(t, 5432, cfg.Port)
		assert.Equal(t, "require", cfg.SSLMode)

		cache := GetCacheConfig(ctx, p)
		assert.Equal(t, 30*time.Second, cache.TTL)
	})

	t.Run("unreachable secret falls back", func(t *testing.T) {
		t.Setenv("APP_ENV", "development")
		t.Setenv("TEST_DB_HOST", "db.internal")

		p := NewProviderWithClient(&fakeSecrets{err: errors.New("access denied")}, "tree/db", "TEST_")
		host, err := p.GetString(ctx, "DB_HOST")
		require.NoError(t, err)
		assert.Equal(t, "db.internal", host)

		_, err = p.GetString(ctx, "NOWHERE")
		assert.ErrorContains(t, err, "access denied")
		assert.ErrorContains(t, err, "TEST_NOWHERE")
	})

	t.Run("empty stack", func(t *testing.T) {
		p := Layered()
		assert.Equal(t, Development, p.GetEnvironment())
		_, err := p.GetBool(ctx, "ANY")
		assert.Error(t, err)
	})
}

func TestValidateSecretSchema(t *testing.T) {
	secrets := map[string]string{
		"DB_HOST": "db", "DB_PORT": "x", "DB_USER": "u", "DB_PASSWORD": "p", "DB_NAME": "n", "DB_SSLMODE": "disable",
	}
	var vErr *ValidationError
	require.ErrorAs(t, validateSecretSchema(secrets, Development), &vErr)
	assert.Equal(t, "DB_PORT", vErr.Field)

	delete(secrets, "DB_USER")
	require.ErrorAs(t, validateSecretSchema(secrets, Development), &vErr)
	assert.Equal(t, "DB_USER", vErr.Field)
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	t.Setenv("APP_ENV", "development")
	t.Setenv("LOGTEST_LOG_LEVEL", "warn")
	t.Setenv("LOGTEST_LOG_FORMAT", "json")

	var buf bytes.Buffer
	logger := newLogger(ctx, NewEnvProvider("LOGTEST_"), &buf)
	logger.Info("hidden")
	logger.Warn("shown", "id", 7)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"env":"development"`)
	assert.Contains(t, out, `"id":7`)
}
