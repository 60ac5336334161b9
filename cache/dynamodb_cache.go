package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const tableName = "OrderedTreeCache"

// DynamoDBAPI defines the interface for DynamoDB operations
type DynamoDBAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// CacheItem is the stored form of one cached tree
type CacheItem struct {
	Key       string `dynamodbav:"key"`
	Data      []byte `dynamodbav:"data"`
	Timestamp int64  `dynamodbav:"timestamp"`
	TTL       int64  `dynamodbav:"ttl"`
}

// DynamoDBCache implements CacheProvider using DynamoDB
type DynamoDBCache struct {
	client   DynamoDBAPI
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewDynamoDBCache creates a new DynamoDB cache provider from the default AWS config
func NewDynamoDBCache(ctx context.Context, logger *slog.Logger) (*DynamoDBCache, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewDynamoDBCacheWithClient(dynamodb.NewFromConfig(cfg), logger), nil
}

// NewDynamoDBCacheWithClient creates a new DynamoDB cache provider with a custom client
func NewDynamoDBCacheWithClient(client DynamoDBAPI, logger *slog.Logger) *DynamoDBCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamoDBCache{
		client:   client,
		cacheTTL: DefaultTTL,
		logger:   logger,
	}
}

// Initialize creates the DynamoDB table if it doesn't exist
func (c *DynamoDBCache) Initialize(ctx context.Context) error {
	_, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("key"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("key"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	return err
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: key},
	}
}

// GetTree retrieves the tree from DynamoDB cache if available
func (c *DynamoDBCache) GetTree(ctx context.Context, key string) ([]byte, bool) {
	result, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key:       itemKey(key),
	})
	if err != nil || result.Item == nil {
		return nil, false
	}

	var item CacheItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, false
	}

	if time.Now().Unix() > item.TTL {
		if err := c.InvalidateCache(ctx, key); err != nil {
			c.logger.WarnContext(ctx, "deleting expired cache item", "key", key, "error", err)
		}
		return nil, false
	}
	return item.Data, true
}

// SetTree stores the tree in DynamoDB cache
func (c *DynamoDBCache) SetTree(ctx context.Context, key string, data []byte) {
	now := time.Now()
	item := CacheItem{
		Key:       key,
		Data:      data,
		Timestamp: now.Unix(),
		TTL:       now.Add(c.cacheTTL).Unix(),
	}

	av, err := attributevalue.MarshalMap(item)
	if err == nil {
		_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(tableName),
			Item:      av,
		})
	}
	if err != nil {
		// A stale entry must not outlive a failed write.
		if err := c.InvalidateCache(ctx, key); err != nil {
			c.logger.WarnContext(ctx, "invalidating cache after put failure", "key", key, "error", err)
		}
	}
}

// InvalidateCache removes the tree from DynamoDB cache
func (c *DynamoDBCache) InvalidateCache(ctx context.Context, key string) error {
	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(tableName),
		Key:       itemKey(key),
	})
	return err
}

// SetCacheTTL sets the cache time-to-live duration
func (c *DynamoDBCache) SetCacheTTL(ttl time.Duration) {
	c.cacheTTL = ttl
}
