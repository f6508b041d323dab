// Package dynamolog appends application records to a DynamoDB table keyed
// by conversation (PK) and record id (SK).
package dynamolog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/m3rciful/formbot/form/record"
)

const (
	pkPrefix = "CONV#"
	skPrefix = "APP#"
)

// dynamodbAPI is the part of *dynamodb.Client used by Log.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Log implements record.Log on DynamoDB.
type Log struct {
	api       dynamodbAPI
	tableName string
}

// New validates its arguments.
func New(api dynamodbAPI, tableName string) (*Log, error) {
	if api == nil {
		return nil, errors.New("dynamolog: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamolog: table name must not be empty")
	}
	return &Log{api: api, tableName: tableName}, nil
}

func key(conversationID, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pkPrefix + conversationID},
		"SK": &types.AttributeValueMemberS{Value: skPrefix + id},
	}
}

// conversationOf recovers the conversation id from a record id built by
// record.NewID. Group chat ids are negative, so the last dash separates.
func conversationOf(id string) (string, bool) {
	i := strings.LastIndex(id, "-")
	if i <= 0 {
		return "", false
	}
	return id[:i], true
}

// Append puts r guarded by attribute_not_exists, so a retried submit of the
// same record is absorbed.
func (l *Log) Append(ctx context.Context, r record.Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("dynamolog: encode %s: %w", r.ID, err)
	}
	item := key(r.ConversationID, r.ID)
	item["id"] = &types.AttributeValueMemberS{Value: r.ID}
	item["conversationId"] = &types.AttributeValueMemberS{Value: r.ConversationID}
	item["language"] = &types.AttributeValueMemberS{Value: string(r.Language)}
	item["createdAt"] = &types.AttributeValueMemberS{Value: r.CreatedAt.UTC().Format(time.RFC3339Nano)}
	item["payload"] = &types.AttributeValueMemberS{Value: string(payload)}

	_, err = l.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var exists *types.ConditionalCheckFailedException
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("dynamolog: append %s: %w", r.ID, err)
	}
	return nil
}

// Get reads one record by id.
func (l *Log) Get(ctx context.Context, id string) (record.Record, error) {
	conv, ok := conversationOf(id)
	if !ok {
		return record.Record{}, record.ErrNotFound
	}
	out, err := l.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.tableName),
		Key:            key(conv, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return record.Record{}, fmt.Errorf("dynamolog: get %s: %w", id, err)
	}
	if out == nil || len(out.Item) == 0 {
		return record.Record{}, record.ErrNotFound
	}
	return decode(out.Item)
}

// List scans every application item. The table is small and CLI-only, so
// ordering happens client-side.
func (l *Log) List(ctx context.Context, limit int) ([]record.Record, error) {
	in := &dynamodb.ScanInput{
		TableName:        aws.String(l.tableName),
		FilterExpression: aws.String("begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: skPrefix},
		},
	}
	var out []record.Record
	for {
		page, err := l.api.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("dynamolog: scan: %w", err)
		}
		for _, item := range page.Items {
			r, err := decode(item)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
	return record.Newest(out, limit), nil
}

func decode(item map[string]types.AttributeValue) (record.Record, error) {
	v, ok := item["payload"].(*types.AttributeValueMemberS)
	if !ok {
		return record.Record{}, errors.New("dynamolog: attribute \"payload\" missing or not a string")
	}
	var r record.Record
	if err := json.Unmarshal([]byte(v.Value), &r); err != nil {
		return record.Record{}, fmt.Errorf("dynamolog: decode payload: %w", err)
	}
	return r, nil
}
