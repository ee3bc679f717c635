package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type sessionRecord struct {
	SenderID  string `dynamodbav:"senderId"`
	ContextID string `dynamodbav:"contextId"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

// DynamoStore persists mappings in a DynamoDB table keyed by senderId.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
}

var _ Store = (*DynamoStore)(nil)

func NewDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	if client == nil {
		panic("session: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("session: table name cannot be empty")
	}
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) Lookup(ctx context.Context, senderID string) (string, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"senderId": &types.AttributeValueMemberS{Value: senderID},
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("session: lookup %s: %w", senderID, err)
	}
	if out.Item == nil {
		return "", false, nil
	}

	var record sessionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return "", false, fmt.Errorf("session: decode %s: %w", senderID, err)
	}
	if record.ContextID == "" {
		return "", false, nil
	}
	return record.ContextID, true, nil
}

func (s *DynamoStore) Store(ctx context.Context, senderID, contextID string) error {
	if err := validateKeys(senderID, contextID); err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(sessionRecord{
		SenderID:  senderID,
		ContextID: contextID,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("session: marshal %s: %w", senderID, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("session: store %s: %w", senderID, err)
	}
	return nil
}
