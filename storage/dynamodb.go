package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// DynamoDB item layout. Hash fields are stored as string attributes with a
// prefix so they cannot collide with the key or the expiry attributes.
const (
	dynamoKeyAttr      = "id"
	dynamoFieldPrefix  = "f_"
	dynamoTTLAttr      = "ttl"       // epoch seconds, for native TTL
	dynamoExpireAtAttr = "expire_ms" // epoch ms, checked on every read

	// maxIncrementAttempts bounds the compare-and-swap loop in IncrementField.
	maxIncrementAttempts = 16
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoStore
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore implements HashStore on a DynamoDB table keyed by "id".
// Field values are strings, so IncrementField is an optimistic
// compare-and-swap on the field's current value rather than ADD.
type DynamoStore struct {
	client    DynamoDBAPI
	tableName string
	now       func() time.Time
}

// NewDynamoStore creates a new DynamoDB storage backend
func NewDynamoStore(tableName, region string) (*DynamoStore, error) {
	if tableName == "" {
		return nil, fmt.Errorf("dynamodb table name must not be empty")
	}
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewDynamoStoreWithClient(dynamodb.NewFromConfig(cfg), tableName), nil
}

// NewDynamoStoreWithClient wraps an existing client
func NewDynamoStoreWithClient(client DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

func (d *DynamoStore) key(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoKeyAttr: &types.AttributeValueMemberS{Value: key},
	}
}

// getLive reads the item with a strongly consistent read. Items whose
// expire_ms has passed are reported as missing.
func (d *DynamoStore) getLive(ctx context.Context, key string) (map[string]types.AttributeValue, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	if exp, ok := out.Item[dynamoExpireAtAttr].(*types.AttributeValueMemberN); ok {
		if ms, err := strconv.ParseInt(exp.Value, 10, 64); err == nil && d.now().UnixMilli() >= ms {
			return nil, ErrNotFound
		}
	}
	return out.Item, nil
}

// purgeExpired deletes the item only if it carries an elapsed expiry.
func (d *DynamoStore) purgeExpired(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 d.key(key),
		ConditionExpression: aws.String("#exp <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#exp": dynamoExpireAtAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(d.now().UnixMilli(), 10)},
		},
	})
	if isConditionFailed(err) {
		return nil
	}
	return err
}

// SetFields writes the fields with a single UpdateItem, which creates the
// item when it does not exist.
func (d *DynamoStore) SetFields(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := d.purgeExpired(ctx, key); err != nil {
		return err
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	attrNames := make(map[string]string, len(names))
	attrValues := make(map[string]types.AttributeValue, len(names))
	for i, name := range names {
		n, v := fmt.Sprintf("#a%d", i), fmt.Sprintf(":v%d", i)
		sets = append(sets, n+" = "+v)
		attrNames[n] = dynamoFieldPrefix + name
		attrValues[v] = &types.AttributeValueMemberS{Value: fields[name]}
	}

	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.tableName),
		Key:                       d.key(key),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeNames:  attrNames,
		ExpressionAttributeValues: attrValues,
	})
	return err
}

// GetFields returns all prefixed string attributes of a live item
func (d *DynamoStore) GetFields(ctx context.Context, key string) (map[string]string, error) {
	item, err := d.getLive(ctx, key)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(item))
	for name, av := range item {
		if !strings.HasPrefix(name, dynamoFieldPrefix) {
			continue
		}
		if s, ok := av.(*types.AttributeValueMemberS); ok {
			fields[strings.TrimPrefix(name, dynamoFieldPrefix)] = s.Value
		}
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

// IncrementField reads the current value and writes value+delta on the
// condition that the field still holds what was read. A lost race re-reads
// and tries again; a vanished item returns ErrNotFound.
func (d *DynamoStore) IncrementField(ctx context.Context, key, field string, delta int64) (int64, error) {
	attr := dynamoFieldPrefix + field

	for attempt := 0; attempt < maxIncrementAttempts; attempt++ {
		item, err := d.getLive(ctx, key)
		if err != nil {
			return 0, err
		}

		var cur int64
		cond := "attribute_exists(#id) AND attribute_not_exists(#f)"
		values := map[string]types.AttributeValue{}
		if s, ok := item[attr].(*types.AttributeValueMemberS); ok {
			if cur, err = parseCounter(key, field, s.Value); err != nil {
				return 0, err
			}
			cond = "attribute_exists(#id) AND #f = :cur"
			values[":cur"] = &types.AttributeValueMemberS{Value: s.Value}
		}
		next := cur + delta
		values[":next"] = &types.AttributeValueMemberS{Value: strconv.FormatInt(next, 10)}

		_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(d.tableName),
			Key:                 d.key(key),
			UpdateExpression:    aws.String("SET #f = :next"),
			ConditionExpression: aws.String(cond),
			ExpressionAttributeNames: map[string]string{
				"#id": dynamoKeyAttr,
				"#f":  attr,
			},
			ExpressionAttributeValues: values,
		})
		if err == nil {
			return next, nil
		}
		if !isConditionFailed(err) {
			return 0, err
		}
	}

	return 0, fmt.Errorf("increment %s of %s: too much contention after %d attempts", field, key, maxIncrementAttempts)
}

// SetExpiry sets both the native TTL attribute and the precise expiry
func (d *DynamoStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	deadline := d.now().Add(ttl)
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 d.key(key),
		UpdateExpression:    aws.String("SET #ttl = :ttl, #exp = :exp"),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id":  dynamoKeyAttr,
			"#ttl": dynamoTTLAttr,
			"#exp": dynamoExpireAtAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(deadline.Unix(), 10)},
			":exp": &types.AttributeValueMemberN{Value: strconv.FormatInt(deadline.UnixMilli(), 10)},
		},
	})
	if isConditionFailed(err) {
		return nil
	}
	return err
}

// Delete removes the item
func (d *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.key(key),
	})
	return err
}

// Exists reports whether a live item exists
func (d *DynamoStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := d.getLive(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Ping describes the table and requires it to be ACTIVE
func (d *DynamoStore) Ping(ctx context.Context) error {
	out, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	if err != nil {
		return err
	}
	if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
		return fmt.Errorf("table %s is not active", d.tableName)
	}
	return nil
}

// Close is a no-op for DynamoDB
func (d *DynamoStore) Close() error {
	return nil
}

func isConditionFailed(err error) bool {
	if err == nil {
		return false
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}
