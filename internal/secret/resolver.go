// Package secret provides an abstraction for retrieving secrets from
// different backends (SSM Parameter Store, environment variables, etc.).
package secret

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmBatchSize is the most names a single GetParameters call accepts.
const ssmBatchSize = 10

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// Resolver retrieves secret values by name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver fetches secrets from AWS Systems Manager Parameter Store.
// Values are kept for the life of the process; a warm Lambda never asks twice.
type SSMResolver struct {
	client SSMClient

	mu     sync.RWMutex
	values map[string]string
}

// NewSSMResolver returns a Resolver backed by SSM Parameter Store.
func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client, values: make(map[string]string)}
}

// Prefetch loads names in batches so cold start pays one round trip per ten
// parameters. Names SSM does not know are skipped; GetSecret reports them later.
func (r *SSMResolver) Prefetch(ctx context.Context, names ...string) error {
	var pending []string
	r.mu.RLock()
	for _, n := range names {
		if _, ok := r.values[n]; !ok && n != "" {
			pending = append(pending, n)
		}
	}
	r.mu.RUnlock()

	for start := 0; start < len(pending); start += ssmBatchSize {
		end := min(start+ssmBatchSize, len(pending))
		out, err := r.client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          pending[start:end],
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("ssm get parameters: %w", err)
		}
		r.mu.Lock()
		for _, p := range out.Parameters {
			if p.Name != nil && p.Value != nil {
				r.values[*p.Name] = *p.Value
			}
		}
		r.mu.Unlock()
		if len(out.InvalidParameters) > 0 {
			log.Printf("[Secret] SSM has no parameters %v", out.InvalidParameters)
		}
	}
	return nil
}

// GetSecret retrieves a SecureString parameter from SSM with decryption.
func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	val, ok := r.values[name]
	r.mu.RUnlock()
	if ok {
		return val, nil
	}

	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("ssm parameter %q has no value", name)
	}
	r.mu.Lock()
	r.values[name] = *out.Parameter.Value
	r.mu.Unlock()
	return *out.Parameter.Value, nil
}

// EnvResolver fetches secrets from environment variables.
// The parameter name is converted from SSM path format (e.g. "/gophgallery/jwt-secret")
// to the corresponding environment variable name (e.g. "JWT_SECRET") by taking the
// last segment, uppercasing, and replacing hyphens with underscores.
type EnvResolver struct{}

// NewEnvResolver returns a Resolver that reads from environment variables.
func NewEnvResolver() Resolver {
	return &EnvResolver{}
}

// GetSecret reads from the environment variable derived from the parameter name.
func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := paramNameToEnvVar(name)
	val := os.Getenv(envName)
	if val == "" {
		return "", fmt.Errorf("environment variable %q (from param %q) is not set", envName, name)
	}
	return val, nil
}

// ChainResolver tries each resolver in order and returns the first value found.
// Production uses SSM first and falls back to the environment for values that were
// injected directly into the function configuration.
type ChainResolver struct {
	resolvers []Resolver
}

// NewChainResolver returns a Resolver that consults resolvers in order.
func NewChainResolver(resolvers ...Resolver) Resolver {
	return &ChainResolver{resolvers: resolvers}
}

// GetSecret returns the first successful lookup, or an error joining every failure.
func (r *ChainResolver) GetSecret(ctx context.Context, name string) (string, error) {
	var errs []error
	for _, res := range r.resolvers {
		val, err := res.GetSecret(ctx, name)
		if err == nil {
			return val, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("no resolver configured for %q", name)
	}
	return "", errors.Join(errs...)
}

// GetOptional returns the secret or "" when no resolver has it.
func GetOptional(ctx context.Context, r Resolver, name string) string {
	val, err := r.GetSecret(ctx, name)
	if err != nil {
		return ""
	}
	return val
}

// paramNameToEnvVar converts an SSM parameter name to an environment variable name.
// "/gophgallery/jwt-secret" -> "JWT_SECRET"
// "/gophgallery/dropbox-client-secret" -> "DROPBOX_CLIENT_SECRET"
func paramNameToEnvVar(name string) string {
	parts := strings.Split(name, "/")
	last := parts[len(parts)-1]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}
