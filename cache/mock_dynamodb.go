package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MockDynamoDBClient implements DynamoDBAPI in memory for testing
type MockDynamoDBClient struct {
	mu     sync.RWMutex
	tables map[string]map[string]map[string]types.AttributeValue
	// FailPuts makes PutItem return an error
	FailPuts bool
}

// NewMockDynamoDBClient creates a new mock DynamoDB client
func NewMockDynamoDBClient() *MockDynamoDBClient {
	return &MockDynamoDBClient{
		tables: make(map[string]map[string]map[string]types.AttributeValue),
	}
}

// CreateTable mocks the CreateTable operation
func (m *MockDynamoDBClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[*params.TableName]; !ok {
		m.tables[*params.TableName] = make(map[string]map[string]types.AttributeValue)
	}
	return &dynamodb.CreateTableOutput{}, nil
}

// DescribeTable mocks the DescribeTable operation
func (m *MockDynamoDBClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.tables[*params.TableName]; !ok {
		return nil, &types.ResourceNotFoundException{Message: params.TableName}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

// GetItem mocks the GetItem operation
func (m *MockDynamoDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := params.Key["key"].(*types.AttributeValueMemberS).Value
	if item, ok := m.tables[*params.TableName][key]; ok {
		return &dynamodb.GetItemOutput{Item: item}, nil
	}
	return &dynamodb.GetItemOutput{Item: nil}, nil
}

// PutItem mocks the PutItem operation
func (m *MockDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPuts {
		return nil, errors.New("mock put failure")
	}
	table, ok := m.tables[*params.TableName]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: params.TableName}
	}
	key := params.Item["key"].(*types.AttributeValueMemberS).Value
	table[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

// DeleteItem mocks the DeleteItem operation
func (m *MockDynamoDBClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := params.Key["key"].(*types.AttributeValueMemberS).Value
	if table, ok := m.tables[*params.TableName]; ok {
		delete(table, key)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

// SetItem stores a raw item, bypassing the cache layer
func (m *MockDynamoDBClient) SetItem(table, key string, item map[string]types.AttributeValue) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[table]; !ok {
		m.tables[table] = make(map[string]map[string]types.AttributeValue)
	}
	m.tables[table][key] = item
}
