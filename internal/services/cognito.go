package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// ErrIdentityNotFound is returned when the user pool has no user for the identity
var ErrIdentityNotFound = errors.New("identity not found")

// CognitoAPI is the subset of the Cognito user pool client used here
type CognitoAPI interface {
	AdminDeleteUser(ctx context.Context, params *cognitoidentityprovider.AdminDeleteUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminDeleteUserOutput, error)
	ListUsers(ctx context.Context, params *cognitoidentityprovider.ListUsersInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ListUsersOutput, error)
}

// CognitoIdentityProvider removes sign-in identities from a user pool.
// Admin calls address users by username, which is not the sub in pools
// that sign in with an email or preferred_username alias.
type CognitoIdentityProvider struct {
	client     CognitoAPI
	userPoolID string
}

// NewCognitoIdentityProvider creates an identity provider for userPoolID
func NewCognitoIdentityProvider(client CognitoAPI, userPoolID string) *CognitoIdentityProvider {
	return &CognitoIdentityProvider{
		client:     client,
		userPoolID: userPoolID,
	}
}

// DeleteIdentity deletes the user with the given sub. When username is
// empty it is looked up by sub first. A missing user is reported as
// ErrIdentityNotFound.
func (c *CognitoIdentityProvider) DeleteIdentity(ctx context.Context, uid, username string) error {
	if username == "" {
		resolved, err := c.usernameForSub(ctx, uid)
		if err != nil {
			return err
		}
		username = resolved
	}

	_, err := c.client.AdminDeleteUser(ctx, &cognitoidentityprovider.AdminDeleteUserInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		var notFound *types.UserNotFoundException
		if errors.As(err, &notFound) {
			return fmt.Errorf("identity %s (username %s): %w", uid, username, ErrIdentityNotFound)
		}
		return fmt.Errorf("failed to delete identity %s: %w", uid, err)
	}

	return nil
}

func (c *CognitoIdentityProvider) usernameForSub(ctx context.Context, uid string) (string, error) {
	result, err := c.client.ListUsers(ctx, &cognitoidentityprovider.ListUsersInput{
		UserPoolId: aws.String(c.userPoolID),
		Filter:     aws.String(fmt.Sprintf("sub = %q", uid)),
		Limit:      aws.Int32(1),
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up identity %s: %w", uid, err)
	}

	if len(result.Users) == 0 || aws.ToString(result.Users[0].Username) == "" {
		return "", fmt.Errorf("identity %s: %w", uid, ErrIdentityNotFound)
	}

	return aws.ToString(result.Users[0].Username), nil
}
