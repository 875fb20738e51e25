package storage

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/wod-ingestion-service/internal/config"
	"github.com/cyderes/wod-ingestion-service/internal/models"
)

type fakeDynamoDB struct {
	dynamodbiface.DynamoDBAPI
	puts  []*dynamodb.PutItemInput
	items map[string]map[string]*dynamodb.AttributeValue
}

func (f *fakeDynamoDB) PutItemWithContext(_ aws.Context, in *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	f.items[*in.TableName] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) GetItemWithContext(_ aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[*in.TableName]}, nil
}

func TestDynamoDBStorage_PutSession(t *testing.T) {
	client := &fakeDynamoDB{items: map[string]map[string]*dynamodb.AttributeValue{}}
	store := newDynamoDBStorage(client, "wod_sessions")
	segmentA := "5x3 @70%"

	err := store.PutSession(context.Background(), models.DateRecord{
		Date:     "2021-01-04",
		Session:  "Clean & Jerk",
		SegmentA: &segmentA,
	})

	require.NoError(t, err)
	require.Len(t, client.puts, 1)
	item := client.puts[0].Item
	assert.Equal(t, "wod_sessions", *client.puts[0].TableName)
	assert.Equal(t, "2021-01-04", *item["date"].S)
	assert.Equal(t, "Clean & Jerk", *item["session"].S)
	assert.Equal(t, segmentA, *item["segment_a"].S)
	assert.True(t, *item["warm_up"].NULL)
}

func TestDynamoDBStorage_IngestionStatus(t *testing.T) {
	client := &fakeDynamoDB{items: map[string]map[string]*dynamodb.AttributeValue{}}
	store := newDynamoDBStorage(client, "wod_sessions")
	ctx := context.Background()

	status, err := store.GetIngestionStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "never_run", status.Status)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.UpdateIngestionStatus(ctx, models.IngestionStatus{
		LastAttempt:     now,
		Status:          "success",
		RecordsIngested: 5,
	}))
	assert.Equal(t, "wod_sessions_status", *client.puts[0].TableName)
	assert.Equal(t, statusID, *client.puts[0].Item["id"].S)

	status, err = store.GetIngestionStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "success", status.Status)
	assert.Equal(t, 5, status.RecordsIngested)
	assert.True(t, now.Equal(status.LastAttempt))
}

func configWithType(kind string) config.StorageConfig {
	return config.StorageConfig{Type: kind, TableName: "wod_sessions"}
}
