package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/vecsync/remote"
)

// DDBLedger implements remote.Ledger on DynamoDB.
//
// DynamoDB provides the compare-and-swap that S3 lacks: every push is a
// conditional PutItem on (object, generation), so two writers racing for the
// same generation cannot both commit.
//
// Table schema:
//   - Partition key: object (string) - the primary object name
//   - Sort key: generation (number) - increases by one per push
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name vecsync-ledger \
//	  --attribute-definitions AttributeName=object,AttributeType=S AttributeName=generation,AttributeType=N \
//	  --key-schema AttributeName=object,KeyType=HASH AttributeName=generation,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBLedger struct {
	client    DDBClient
	tableName string
}

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var (
	_ remote.Ledger = (*DDBLedger)(nil)
	_ DDBClient     = (*dynamodb.Client)(nil)
)

// NewDDBLedger creates a ledger stored in tableName.
func NewDDBLedger(client DDBClient, tableName string) *DDBLedger {
	return &DDBLedger{client: client, tableName: tableName}
}

// Latest queries the newest generation for objectName.
func (l *DDBLedger) Latest(ctx context.Context, objectName string) (remote.Record, bool, error) {
	resp, err := l.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		KeyConditionExpression: aws.String("#o = :o"),
		ExpressionAttributeNames: map[string]string{
			"#o": "object",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: objectName},
		},
		ScanIndexForward: aws.Bool(false), // Descending order
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return remote.Record{}, false, fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	if len(resp.Items) == 0 {
		return remote.Record{}, false, nil
	}

	rec, err := decodeRecord(resp.Items[0])
	if err != nil {
		return remote.Record{}, false, err
	}
	return rec, true, nil
}

// Commit writes rec unless its generation already exists.
func (l *DDBLedger) Commit(ctx context.Context, objectName string, rec remote.Record) error {
	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item: map[string]types.AttributeValue{
			"object":     &types.AttributeValueMemberS{Value: objectName},
			"generation": &types.AttributeValueMemberN{Value: strconv.FormatUint(rec.Generation, 10)},
			"object_id":  &types.AttributeValueMemberS{Value: rec.ObjectID},
			"size":       &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.Size, 10)},
			"crc32c":     &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(rec.CRC32C), 10)},
			"pushed_at":  &types.AttributeValueMemberS{Value: rec.PushedAt.UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_not_exists(generation)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return remote.ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit generation to DynamoDB: %w", err)
	}
	return nil
}

func decodeRecord(item map[string]types.AttributeValue) (remote.Record, error) {
	var rec remote.Record
	var err error

	if rec.Generation, err = numberAttr(item, "generation", 64); err != nil {
		return rec, err
	}
	size, err := numberAttr(item, "size", 63)
	if err != nil {
		return rec, err
	}
	rec.Size = int64(size)
	crc, err := numberAttr(item, "crc32c", 32)
	if err != nil {
		return rec, err
	}
	rec.CRC32C = uint32(crc)

	if v, ok := item["object_id"].(*types.AttributeValueMemberS); ok {
		rec.ObjectID = v.Value
	}
	if v, ok := item["pushed_at"].(*types.AttributeValueMemberS); ok {
		if rec.PushedAt, err = time.Parse(time.RFC3339Nano, v.Value); err != nil {
			return rec, fmt.Errorf("invalid pushed_at attribute in DynamoDB: %w", err)
		}
	}
	return rec, nil
}

func numberAttr(item map[string]types.AttributeValue, name string, bits int) (uint64, error) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("invalid %s attribute in DynamoDB", name)
	}
	n, err := strconv.ParseUint(v.Value, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return n, nil
}
