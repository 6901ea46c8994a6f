package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blood-donation-functions/internal/models"
)

// fakeDynamoDB records requests and serves canned responses
type fakeDynamoDB struct {
	getItems   map[string]map[string]types.AttributeValue // table -> item
	queryPages []*dynamodb.QueryOutput
	updateErr  error
	deleteErr  error
	putErr     error

	updates []*dynamodb.UpdateItemInput
	deletes []*dynamodb.DeleteItemInput
	puts    []*dynamodb.PutItemInput
	gets    []*dynamodb.GetItemInput
	queries []*dynamodb.QueryInput
}

func (f *fakeDynamoDB) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.gets = append(f.gets, params)
	return &dynamodb.GetItemOutput{Item: f.getItems[aws.ToString(params.TableName)]}, nil
}

func (f *fakeDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, params)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamoDB) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, params)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamoDB) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes = append(f.deletes, params)
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

func (f *fakeDynamoDB) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, params)
	page := f.queryPages[len(f.queries)-1]
	return page, nil
}

var testTables = AccountTables{
	Users:          "users",
	Donors:         "donors",
	Providers:      "healthcare_providers",
	BloodRequests:  "blood_requests",
	RequesterIndex: "requesterId-index",
	Deletions:      "account_deletions",
}

func keyID(t *testing.T, key map[string]types.AttributeValue, name string) string {
	t.Helper()
	member, ok := key[name].(*types.AttributeValueMemberS)
	require.True(t, ok, "key %s should be a string", name)
	return member.Value
}

func TestAccountStore_MarkProfileForDeletion(t *testing.T) {
	db := &fakeDynamoDB{}
	store := NewAccountStore(db, testTables)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mark := models.NewProfileDeletionMark(now)
	require.NoError(t, store.MarkProfileForDeletion(context.Background(), "user-1", mark))

	require.Len(t, db.updates, 1)
	update := db.updates[0]
	assert.Equal(t, "users", aws.ToString(update.TableName))
	assert.Equal(t, "user-1", keyID(t, update.Key, "id"))
	assert.Equal(t, "attribute_exists(id)", aws.ToString(update.ConditionExpression))
	assert.Contains(t, aws.ToString(update.UpdateExpression), "markedForDeletion = :marked")

	var purgeAt int64
	require.NoError(t, attributevalue.Unmarshal(update.ExpressionAttributeValues[":purgeAt"], &purgeAt))
	assert.Equal(t, now.Add(models.DeletionGracePeriod).Unix(), purgeAt)

	var marked bool
	require.NoError(t, attributevalue.Unmarshal(update.ExpressionAttributeValues[":marked"], &marked))
	assert.True(t, marked)
}

func TestAccountStore_MarkProfileMissing(t *testing.T) {
	db := &fakeDynamoDB{updateErr: &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}}
	store := NewAccountStore(db, testTables)

	err := store.MarkProfileForDeletion(context.Background(), "ghost", models.NewProfileDeletionMark(time.Now()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrItemNotFound))

	db.updateErr = errors.New("throttled")
	err = store.MarkProfileForDeletion(context.Background(), "user-1", models.NewProfileDeletionMark(time.Now()))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrItemNotFound))
}

func TestAccountStore_HealthcareProvider(t *testing.T) {
	db := &fakeDynamoDB{getItems: map[string]map[string]types.AttributeValue{}}
	store := NewAccountStore(db, testTables)

	_, err := store.GetHealthcareProvider(context.Background(), "user-1")
	assert.True(t, errors.Is(err, ErrItemNotFound))

	item, err := attributevalue.MarshalMap(models.HealthcareProvider{ID: "user-1", Name: "City Clinic"})
	require.NoError(t, err)
	db.getItems["healthcare_providers"] = item

	provider, err := store.GetHealthcareProvider(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "City Clinic", provider.Name)
	assert.True(t, aws.ToBool(db.gets[1].ConsistentRead))

	require.NoError(t, store.DeleteHealthcareProvider(context.Background(), "user-1"))
	require.Len(t, db.deletes, 1)
	assert.Equal(t, "healthcare_providers", aws.ToString(db.deletes[0].TableName))
	assert.Equal(t, "user-1", keyID(t, db.deletes[0].Key, "id"))
}

func TestAccountStore_DeleteDonorRecord(t *testing.T) {
	db := &fakeDynamoDB{}
	store := NewAccountStore(db, testTables)

	for _, id := range models.DonorRecordIDs("user-1") {
		require.NoError(t, store.DeleteDonorRecord(context.Background(), id))
	}
	require.Len(t, db.deletes, 2)
	assert.Equal(t, "user-1_daytime", keyID(t, db.deletes[0].Key, "id"))
	assert.Equal(t, "user-1_nighttime", keyID(t, db.deletes[1].Key, "id"))
	assert.Equal(t, "donors", aws.ToString(db.deletes[0].TableName))

	db.deleteErr = errors.New("access denied")
	err := store.DeleteDonorRecord(context.Background(), "user-1_daytime")
	assert.ErrorContains(t, err, "user-1_daytime")
}

func requestPage(t *testing.T, ids []string, last map[string]types.AttributeValue) *dynamodb.QueryOutput {
	t.Helper()
	var items []map[string]types.AttributeValue
	for _, id := range ids {
		item, err := attributevalue.MarshalMap(models.BloodRequest{ID: id, RequesterID: "user-1"})
		require.NoError(t, err)
		items = append(items, item)
	}
	return &dynamodb.QueryOutput{Items: items, LastEvaluatedKey: last}
}

func TestAccountStore_QueryBloodRequestIDsByRequester(t *testing.T) {
	cursor := map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: "req-2"}}
	db := &fakeDynamoDB{queryPages: []*dynamodb.QueryOutput{
		requestPage(t, []string{"req-1", "req-2"}, cursor),
		requestPage(t, []string{"req-3"}, nil),
	}}
	store := NewAccountStore(db, testTables)

	ids, err := store.QueryBloodRequestIDsByRequester(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"req-1", "req-2", "req-3"}, ids)

	require.Len(t, db.queries, 2)
	first := db.queries[0]
	assert.Equal(t, "blood_requests", aws.ToString(first.TableName))
	assert.Equal(t, "requesterId-index", aws.ToString(first.IndexName))
	assert.Equal(t, "requesterId = :requesterId", aws.ToString(first.KeyConditionExpression))
	assert.Equal(t, "user-1", first.ExpressionAttributeValues[":requesterId"].(*types.AttributeValueMemberS).Value)
	assert.Nil(t, first.ExclusiveStartKey)
	assert.Equal(t, cursor, db.queries[1].ExclusiveStartKey)
}

func TestAccountStore_QueryNoRequests(t *testing.T) {
	db := &fakeDynamoDB{queryPages: []*dynamodb.QueryOutput{{}}}
	store := NewAccountStore(db, testTables)

	ids, err := store.QueryBloodRequestIDsByRequester(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAccountStore_DeletionRun(t *testing.T) {
	db := &fakeDynamoDB{getItems: map[string]map[string]types.AttributeValue{}}
	store := NewAccountStore(db, testTables)

	_, err := store.GetDeletionRun(context.Background(), "user-1")
	assert.True(t, errors.Is(err, ErrItemNotFound))

	run := models.NewDeletionRun("user-1", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	run.MarkStepCompleted(models.DeletionStepMarkProfile, time.Now())
	require.NoError(t, store.PutDeletionRun(context.Background(), run))

	require.Len(t, db.puts, 1)
	assert.Equal(t, "account_deletions", aws.ToString(db.puts[0].TableName))
	assert.Equal(t, "user-1", keyID(t, db.puts[0].Item, "userId"))
	assert.Equal(t, "attribute_not_exists(userId)", aws.ToString(db.puts[0].ConditionExpression))
	assert.Equal(t, 1, run.Version)

	db.getItems["account_deletions"] = db.puts[0].Item
	loaded, err := store.GetDeletionRun(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, run.RunID, loaded.RunID)
	assert.Equal(t, 1, loaded.Version)
	assert.Equal(t, []string{models.DeletionStepMarkProfile}, loaded.CompletedSteps)
	assert.True(t, run.DeletionScheduledAt.Equal(loaded.DeletionScheduledAt))
	assert.Equal(t, "user-1", keyID(t, db.gets[1].Key, "userId"))

	invalid := &models.DeletionRun{UserID: "user-1"}
	err = store.PutDeletionRun(context.Background(), invalid)
	assert.ErrorContains(t, err, "invalid deletion run")
	assert.Len(t, db.puts, 1)
}

func TestAccountStore_PutDeletionRunVersion(t *testing.T) {
	db := &fakeDynamoDB{}
	store := NewAccountStore(db, testTables)

	run := models.NewDeletionRun("user-1", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	run.Version = 3
	require.NoError(t, store.PutDeletionRun(context.Background(), run))

	require.Len(t, db.puts, 1)
	put := db.puts[0]
	assert.Equal(t, "version = :expected", aws.ToString(put.ConditionExpression))
	assert.Equal(t, "3", put.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "4", put.Item["version"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, 4, run.Version)

	db.putErr = &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	err := store.PutDeletionRun(context.Background(), run)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConcurrentModification))
	assert.Equal(t, 4, run.Version)

	db.putErr = errors.New("throttled")
	err = store.PutDeletionRun(context.Background(), run)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConcurrentModification))
}
