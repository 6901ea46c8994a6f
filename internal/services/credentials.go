package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ErrCredentialUnavailable means no Places API key is configured
var ErrCredentialUnavailable = errors.New("places API key is not configured")

// SecretsManagerAPI is the subset of the Secrets Manager client used here
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// StaticCredential serves a key read from the environment
type StaticCredential string

// PlacesAPIKey returns the key, or ErrCredentialUnavailable when empty
func (c StaticCredential) PlacesAPIKey(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(c)) == "" {
		return "", ErrCredentialUnavailable
	}
	return string(c), nil
}

// SecretsManagerCredential reads the Places API key from a Secrets Manager secret.
// The value is kept for the lifetime of the execution environment once read.
type SecretsManagerCredential struct {
	client   SecretsManagerAPI
	secretID string

	mu  sync.Mutex
	key string
}

// NewSecretsManagerCredential creates a credential source for secretID
func NewSecretsManagerCredential(client SecretsManagerAPI, secretID string) *SecretsManagerCredential {
	return &SecretsManagerCredential{
		client:   client,
		secretID: secretID,
	}
}

// PlacesAPIKey returns the secret value. A missing secret ID, a missing secret
// or an empty value are reported as ErrCredentialUnavailable.
func (c *SecretsManagerCredential) PlacesAPIKey(ctx context.Context) (string, error) {
	if c.secretID == "" {
		return "", ErrCredentialUnavailable
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != "" {
		return c.key, nil
	}

	out, err := c.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(c.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to read secret %s: %v", ErrCredentialUnavailable, c.secretID, err)
	}

	key := strings.TrimSpace(aws.ToString(out.SecretString))
	if key == "" {
		return "", ErrCredentialUnavailable
	}

	c.key = key
	return key, nil
}

// CredentialChain tries each source in order and returns the first key found
type CredentialChain []interface {
	PlacesAPIKey(ctx context.Context) (string, error)
}

// PlacesAPIKey returns the first available key
func (c CredentialChain) PlacesAPIKey(ctx context.Context) (string, error) {
	lastErr := ErrCredentialUnavailable
	for _, source := range c {
		key, err := source.PlacesAPIKey(ctx)
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return "", lastErr
}
