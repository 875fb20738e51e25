package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// DynamoDBStore keeps idempotency records in a DynamoDB table keyed by
// idempotency_key, with DynamoDB TTL expiring the ttl attribute.
type DynamoDBStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

// NewDynamoDBStore creates a store on an existing client.
func NewDynamoDBStore(client dynamodbiface.DynamoDBAPI, tableName string) *DynamoDBStore {
	return &DynamoDBStore{client: client, tableName: tableName}
}

// EnsureTable creates the table with TTL enabled if it doesn't exist (for local testing)
func (d *DynamoDBStore) EnsureTable(ctx context.Context) error {
	_, err := d.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	if err == nil {
		return nil
	}

	_, err = d.client.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.tableName),
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("idempotency_key"), KeyType: aws.String("HASH")},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("idempotency_key"), AttributeType: aws.String("S")},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	})
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if err := d.client.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	}); err != nil {
		return fmt.Errorf("failed waiting for table: %w", err)
	}

	_, err = d.client.UpdateTimeToLiveWithContext(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(d.tableName),
		TimeToLiveSpecification: &dynamodb.TimeToLiveSpecification{
			AttributeName: aws.String("ttl"),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to enable ttl: %w", err)
	}
	return nil
}

// Get reads a record with a strongly consistent read.
func (d *DynamoDBStore) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	result, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			"idempotency_key": {S: aws.String(key)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var rec models.IdempotencyRecord
	if err := dynamodbattribute.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if rec.IdempotencyKey != key {
		return nil, fmt.Errorf("%w: key mismatch", ErrMalformedRecord)
	}
	return &rec, nil
}

// Put overwrites the record.
func (d *DynamoDBStore) Put(ctx context.Context, record models.IdempotencyRecord) error {
	item, err := dynamodbattribute.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put idempotency record: %w", err)
	}
	return nil
}

// Claim writes record only if no record exists or the existing one has expired.
// DynamoDB deletes expired items lazily, so the ttl comparison is part of the condition.
func (d *DynamoDBStore) Claim(ctx context.Context, record models.IdempotencyRecord) (bool, error) {
	item, err := dynamodbattribute.MarshalMap(record)
	if err != nil {
		return false, fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(idempotency_key) OR #ttl <= :now"),
		ExpressionAttributeNames: map[string]*string{
			"#ttl": aws.String("ttl"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":now": {N: aws.String(strconv.FormatInt(record.CreatedAt.Unix(), 10))},
		},
	})
	if isConditionalCheckFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency record: %w", err)
	}
	return true, nil
}

// Release deletes the record while it is still this attempt's pending claim.
func (d *DynamoDBStore) Release(ctx context.Context, record models.IdempotencyRecord) error {
	createdAt, err := dynamodbattribute.Marshal(record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	_, err = d.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"idempotency_key": {S: aws.String(record.IdempotencyKey)},
		},
		ConditionExpression: aws.String("#status = :pending AND created_at = :created_at"),
		ExpressionAttributeNames: map[string]*string{
			"#status": aws.String("status"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":pending":    {S: aws.String(models.StatusPending)},
			":created_at": createdAt,
		},
	})
	if err != nil && !isConditionalCheckFailed(err) {
		return fmt.Errorf("failed to release idempotency record: %w", err)
	}
	return nil
}

func isConditionalCheckFailed(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}
