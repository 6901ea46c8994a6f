package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"blood-donation-functions/internal/models"
)

// ErrItemNotFound is returned by getters when the key has no item
var ErrItemNotFound = errors.New("item not found")

// ErrConcurrentModification is returned when a conditional write lost to another writer
var ErrConcurrentModification = errors.New("item was modified concurrently")

// DynamoDBAPI is the subset of the DynamoDB client used by AccountStore
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// AccountTables names the tables holding user-linked data
type AccountTables struct {
	Users          string
	Donors         string
	Providers      string
	BloodRequests  string
	RequesterIndex string // GSI on blood requests keyed by requesterId
	Deletions      string
}

// AccountStore provides the DynamoDB operations used by account deletion
type AccountStore struct {
	client DynamoDBAPI
	tables AccountTables
}

// NewAccountStore creates a new account store over the given tables
func NewAccountStore(client DynamoDBAPI, tables AccountTables) *AccountStore {
	return &AccountStore{
		client: client,
		tables: tables,
	}
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

// Users Table Operations

// MarkProfileForDeletion flags an existing user profile and schedules its purge.
// Fails if the profile does not exist.
func (s *AccountStore) MarkProfileForDeletion(ctx context.Context, userID string, mark models.ProfileDeletionMark) error {
	values, err := attributevalue.MarshalMap(map[string]interface{}{
		":marked":      mark.MarkedForDeletion,
		":scheduledAt": mark.DeletionScheduledAt,
		":purgeAt":     mark.PurgeAt,
		":updatedAt":   mark.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal deletion mark: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tables.Users),
		Key:                       idKey(userID),
		UpdateExpression:          aws.String("SET markedForDeletion = :marked, deletionScheduledAt = :scheduledAt, purgeAt = :purgeAt, updatedAt = :updatedAt"),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("user profile %s: %w", userID, ErrItemNotFound)
		}
		return fmt.Errorf("failed to mark user profile for deletion: %w", err)
	}

	return nil
}

// Donors Table Operations

// DeleteDonorRecord removes a donor record; a missing record is not an error
func (s *AccountStore) DeleteDonorRecord(ctx context.Context, recordID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tables.Donors),
		Key:       idKey(recordID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete donor record %s: %w", recordID, err)
	}

	return nil
}

// Healthcare Providers Table Operations

// GetHealthcareProvider retrieves the provider record owned by userID
func (s *AccountStore) GetHealthcareProvider(ctx context.Context, userID string) (*models.HealthcareProvider, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Providers),
		Key:            idKey(userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get healthcare provider: %w", err)
	}

	if result.Item == nil {
		return nil, ErrItemNotFound
	}

	var provider models.HealthcareProvider
	err = attributevalue.UnmarshalMap(result.Item, &provider)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal healthcare provider: %w", err)
	}

	return &provider, nil
}

// DeleteHealthcareProvider removes the provider record owned by userID
func (s *AccountStore) DeleteHealthcareProvider(ctx context.Context, userID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tables.Providers),
		Key:       idKey(userID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete healthcare provider: %w", err)
	}

	return nil
}

// Blood Requests Table Operations

// QueryBloodRequestIDsByRequester returns the IDs of every request created by userID
func (s *AccountStore) QueryBloodRequestIDsByRequester(ctx context.Context, userID string) ([]string, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.BloodRequests),
		IndexName:              aws.String(s.tables.RequesterIndex),
		KeyConditionExpression: aws.String("requesterId = :requesterId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":requesterId": &types.AttributeValueMemberS{Value: userID},
		},
		ProjectionExpression: aws.String("id, requesterId"),
	})

	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query blood requests by requester: %w", err)
		}

		var requests []models.BloodRequest
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &requests); err != nil {
			return nil, fmt.Errorf("failed to unmarshal blood requests: %w", err)
		}
		for _, r := range requests {
			ids = append(ids, r.ID)
		}
	}

	return ids, nil
}

// DeleteBloodRequest removes a blood request by ID
func (s *AccountStore) DeleteBloodRequest(ctx context.Context, requestID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tables.BloodRequests),
		Key:       idKey(requestID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete blood request %s: %w", requestID, err)
	}

	return nil
}

// Account Deletions Table Operations

// GetDeletionRun retrieves the progress marker for userID
func (s *AccountStore) GetDeletionRun(ctx context.Context, userID string) (*models.DeletionRun, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tables.Deletions),
		Key: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get deletion run: %w", err)
	}

	if result.Item == nil {
		return nil, ErrItemNotFound
	}

	var run models.DeletionRun
	err = attributevalue.UnmarshalMap(result.Item, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal deletion run: %w", err)
	}

	return &run, nil
}

// PutDeletionRun stores the progress marker if nobody else wrote it since
// run was read. On success run.Version moves to the stored revision.
func (s *AccountStore) PutDeletionRun(ctx context.Context, run *models.DeletionRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid deletion run: %w", err)
	}

	next := *run
	next.Version = run.Version + 1
	item, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("failed to marshal deletion run: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.tables.Deletions),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(userId)"),
	}
	if run.Version > 0 {
		input.ConditionExpression = aws.String("version = :expected")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(run.Version)},
		}
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("deletion run for %s at version %d: %w", run.UserID, run.Version, ErrConcurrentModification)
		}
		return fmt.Errorf("failed to put deletion run: %w", err)
	}

	run.Version = next.Version
	return nil
}
