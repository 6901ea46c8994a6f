package services

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSecretsManager struct {
	mock.Mock
}

func (m *mockSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	args := m.Called(ctx, aws.ToString(params.SecretId))
	out, _ := args.Get(0).(*secretsmanager.GetSecretValueOutput)
	return out, args.Error(1)
}

func TestStaticCredential(t *testing.T) {
	key, err := StaticCredential("abc").PlacesAPIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", key)

	_, err = StaticCredential("  ").PlacesAPIKey(context.Background())
	assert.True(t, errors.Is(err, ErrCredentialUnavailable))
}

func TestSecretsManagerCredential_CachesValue(t *testing.T) {
	client := new(mockSecretsManager)
	client.On("GetSecretValue", mock.Anything, "places-api-key").
		Return(&secretsmanager.GetSecretValueOutput{SecretString: aws.String(" key-from-secret\n")}, nil).Once()

	cred := NewSecretsManagerCredential(client, "places-api-key")
	for i := 0; i < 3; i++ {
		key, err := cred.PlacesAPIKey(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "key-from-secret", key)
	}
	client.AssertNumberOfCalls(t, "GetSecretValue", 1)
}

func TestSecretsManagerCredential_Unavailable(t *testing.T) {
	tests := []struct {
		name     string
		secretID string
		output   *secretsmanager.GetSecretValueOutput
		err      error
	}{
		{name: "No secret configured"},
		{name: "Read fails", secretID: "places-api-key", err: errors.New("ResourceNotFoundException")},
		{name: "Empty value", secretID: "places-api-key", output: &secretsmanager.GetSecretValueOutput{SecretString: aws.String("")}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := new(mockSecretsManager)
			client.On("GetSecretValue", mock.Anything, test.secretID).Return(test.output, test.err)

			_, err := NewSecretsManagerCredential(client, test.secretID).PlacesAPIKey(context.Background())
			assert.True(t, errors.Is(err, ErrCredentialUnavailable))
		})
	}
}

func TestCredentialChain(t *testing.T) {
	client := new(mockSecretsManager)
	client.On("GetSecretValue", mock.Anything, "places-api-key").
		Return(&secretsmanager.GetSecretValueOutput{SecretString: aws.String("from-secret")}, nil)

	chain := CredentialChain{StaticCredential(""), NewSecretsManagerCredential(client, "places-api-key")}
	key, err := chain.PlacesAPIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-secret", key)

	chain = CredentialChain{StaticCredential("from-env"), NewSecretsManagerCredential(client, "places-api-key")}
	key, err = chain.PlacesAPIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)
	client.AssertNumberOfCalls(t, "GetSecretValue", 1)

	_, err = CredentialChain{}.PlacesAPIKey(context.Background())
	assert.True(t, errors.Is(err, ErrCredentialUnavailable))
}
