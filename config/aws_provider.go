package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// SecretNameEnv names the Secrets Manager secret holding the database settings
const SecretNameEnv = "AWS_SECRET_NAME"

// NewProvider returns the configuration source shared by the server, the Lambda
// handler and treectl. With AWS_SECRET_NAME set, keys resolve from that secret
// first and from prefixed environment variables second.
func NewProvider(prefix string) (Provider, error) {
	secretName := os.Getenv(SecretNameEnv)
	if secretName == "" {
		return NewEnvProvider(prefix), nil
	}

	secrets, err := NewAWSSecretsProvider(secretName)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS secrets provider: %w", err)
	}
	return Layered(secrets, NewEnvProvider(prefix)), nil
}

// NewProviderWithClient is NewProvider around an existing Secrets Manager client
func NewProviderWithClient(client SecretsManagerAPI, secretName, prefix string) Provider {
	return Layered(NewAWSSecretsProviderWithClient(client, secretName), NewEnvProvider(prefix))
}

// LayeredProvider resolves each key from the first source that has it
type LayeredProvider struct {
	sources []Provider
}

// Layered stacks providers in lookup order. The first one sets the environment.
func Layered(sources ...Provider) *LayeredProvider {
	return &LayeredProvider{sources: sources}
}

// GetEnvironment returns the environment of the first source
func (p *LayeredProvider) GetEnvironment() Environment {
	if len(p.sources) == 0 {
		return Development
	}
	return p.sources[0].GetEnvironment()
}

// GetString returns the first value found, or every source's error when none has the key
func (p *LayeredProvider) GetString(ctx context.Context, key string) (string, error) {
	var errs []error
	for _, src := range p.sources {
		value, err := src.GetString(ctx, key)
		if err == nil {
			return value, nil
		}
		errs = append(errs, err)
	}
	return "", fmt.Errorf("config key %s: %w", key, errors.Join(errs...))
}

func (p *LayeredProvider) GetInt(ctx context.Context, key string) (int, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

func (p *LayeredProvider) GetBool(ctx context.Context, key string) (bool, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}

func (p *LayeredProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.GetString(ctx, key)
}
