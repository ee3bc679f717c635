package session

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type mockDynamo struct {
	items  map[string]map[string]types.AttributeValue
	getErr error
	putErr error
	gets   []*dynamodb.GetItemInput
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func (m *mockDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.gets = append(m.gets, in)
	if m.getErr != nil {
		return nil, m.getErr
	}
	key := in.Key["senderId"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: m.items[key]}, nil
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	key := in.Item["senderId"].(*types.AttributeValueMemberS).Value
	m.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestDynamoStore_RoundTrip(t *testing.T) {
	mock := newMockDynamo()
	store := NewDynamoStore(mock, "sender_sessions")
	ctx := context.Background()

	if _, found, err := store.Lookup(ctx, "123"); err != nil || found {
		t.Fatalf("expected absent mapping, got found=%v err=%v", found, err)
	}
	if err := store.Store(ctx, "123", "thread_1"); err != nil {
		t.Fatalf("store: %v", err)
	}

	var record sessionRecord
	if err := attributevalue.UnmarshalMap(mock.items["123"], &record); err != nil {
		t.Fatalf("decode stored item: %v", err)
	}
	if record.ContextID != "thread_1" || record.UpdatedAt == "" {
		t.Fatalf("unexpected stored record %+v", record)
	}

	contextID, found, err := store.Lookup(ctx, "123")
	if err != nil || !found || contextID != "thread_1" {
		t.Fatalf("lookup returned %q found=%v err=%v", contextID, found, err)
	}
	last := mock.gets[len(mock.gets)-1]
	if last.ConsistentRead == nil || !*last.ConsistentRead {
		t.Fatal("expected consistent reads")
	}
}

func TestDynamoStore_Errors(t *testing.T) {
	mock := newMockDynamo()
	mock.getErr = errors.New("throttled")
	mock.putErr = errors.New("throttled")
	store := NewDynamoStore(mock, "sender_sessions")

	if _, _, err := store.Lookup(context.Background(), "123"); err == nil {
		t.Fatal("expected lookup error")
	}
	if err := store.Store(context.Background(), "123", "thread_1"); err == nil {
		t.Fatal("expected store error")
	}
}
