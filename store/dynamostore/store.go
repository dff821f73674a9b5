// Package dynamostore implements the versioned attribute store on
// DynamoDB. One DynamoDB item holds one store item: its name as the
// partition key, the version counter, and the attribute bag as a string
// map. All writes are full-image conditional puts keyed on the version,
// so the backing store's single-item CAS is the only synchronization.
package dynamostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/guoyu07/Sqawsh-sub001/retry"
	"github.com/guoyu07/Sqawsh-sub001/store"
)

// The subset of the DynamoDB client this store calls. Satisfied by
// *dynamodb.Client and by the fake used in tests.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Attribute names of the table schema. ReservedNames can never be used
// as store attribute names; the key codecs upstream never produce them.
const (
	keyField     = "Name"
	versionField = "Version"
	attrsField   = "Attrs"
)

// tombstoneAttempts bounds the internal CAS retry of Delete's first
// phase.
const tombstoneAttempts = 5

type Config struct {
	// TableName is the DynamoDB table holding all items.
	TableName string
	// MaxAttributes caps the attributes per item. Zero means no cap.
	MaxAttributes int
}

type Store struct {
	client  DynamoAPI
	table   string
	maxAttr int
}

var _ store.Store = (*Store)(nil)

func New(client DynamoAPI, cfg Config) *Store {
	return &Store{client: client, table: cfg.TableName, maxAttr: cfg.MaxAttributes}
}

// NewDefaultClient builds a DynamoDB client from the ambient AWS
// configuration (credentials chain, shared config files).
func NewDefaultClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// record is the DynamoDB image of one item.
type record struct {
	Name    string            `dynamodbav:"Name"`
	Version int64             `dynamodbav:"Version"`
	Attrs   map[string]string `dynamodbav:"Attrs"`
}

func (s *Store) key(item string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyField: &types.AttributeValueMemberS{Value: item},
	}
}

// read fetches the full image of an item, tombstoned attributes
// included. Returns nil when the item has never been written.
func (s *Store) read(ctx context.Context, item string) (*record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(item),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, store.StoreError{Op: "get " + item, Err: err}
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, store.StoreError{Op: "decode " + item, Err: err}
	}
	if rec.Attrs == nil {
		rec.Attrs = make(map[string]string)
	}
	return &rec, nil
}

func active(rec *record) []store.Attribute {
	var attrs []store.Attribute
	for name, value := range rec.Attrs {
		a := store.Attribute{Name: name, Value: value}
		if a.Tombstoned() {
			continue
		}
		attrs = append(attrs, a)
	}
	return attrs
}

func (s *Store) Get(ctx context.Context, item string) (*int64, []store.Attribute, error) {
	rec, err := s.read(ctx, item)
	if err != nil || rec == nil {
		return nil, nil, err
	}
	v := rec.Version
	return &v, active(rec), nil
}

func (s *Store) GetAll(ctx context.Context) ([]store.Item, error) {
	var items []store.Item
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, store.StoreError{Op: "scan", Err: err}
		}
		var recs []record
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
			return nil, store.StoreError{Op: "decode scan page", Err: err}
		}
		for i := range recs {
			if recs[i].Attrs == nil {
				recs[i].Attrs = make(map[string]string)
			}
			items = append(items, store.Item{
				Name:       recs[i].Name,
				Version:    recs[i].Version,
				Attributes: active(&recs[i]),
			})
		}
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *Store) Put(ctx context.Context, item string, expected *int64, attr store.Attribute) (int64, error) {
	// The consistent read supplies the rest of the full image and the
	// attribute count for the cap check. Any mutation sneaking in after
	// it is caught by the version condition below.
	rec, err := s.read(ctx, item)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		rec = &record{Name: item, Attrs: make(map[string]string)}
	}
	_, replacing := rec.Attrs[attr.Name]
	if s.maxAttr > 0 && len(rec.Attrs) >= s.maxAttr && !attr.Tombstoned() && !replacing {
		return 0, store.TooManyAttributesError{Item: item, Max: s.maxAttr}
	}

	newVersion := int64(0)
	var cond expression.ConditionBuilder
	if expected == nil {
		cond = expression.AttributeNotExists(expression.Name(keyField))
	} else {
		newVersion = *expected + 1
		cond = expression.Equal(expression.Name(versionField), expression.Value(*expected))
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return 0, store.StoreError{Op: "build put condition", Err: err}
	}

	rec.Version = newVersion
	rec.Attrs[attr.Name] = attr.Value
	image, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return 0, store.StoreError{Op: "encode " + item, Err: err}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      image,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if conditionFailed(err) {
			return 0, fmt.Errorf("%w: put %s", store.ErrConflict, item)
		}
		return 0, store.StoreError{Op: "put " + item, Err: err}
	}
	return newVersion, nil
}

func (s *Store) Delete(ctx context.Context, item string, attr store.Attribute) error {
	// Phase one: tombstone the attribute with a CAS put, re-reading
	// fresh state on each lost race. Finding the attribute already gone
	// means someone else completed the delete.
	alreadyGone := false
	err := retry.Do(ctx, tombstoneAttempts, store.IsConflict, func() error {
		rec, err := s.read(ctx, item)
		if err != nil {
			return err
		}
		if rec == nil {
			alreadyGone = true
			return nil
		}
		value, ok := rec.Attrs[attr.Name]
		if !ok {
			alreadyGone = true
			return nil
		}
		if value == store.Tombstone {
			return nil
		}
		_, err = s.Put(ctx, item, &rec.Version, store.Attribute{Name: attr.Name, Value: store.Tombstone})
		return err
	})
	if err != nil {
		return err
	}
	if alreadyGone {
		return nil
	}

	// Phase two: physically remove the attribute, conditioned on the
	// tombstone still being in place. The version is deliberately left
	// alone here; the bump happened with the tombstone write. Attribute
	// names go through a placeholder so DynamoDB never interprets their
	// dots as document paths.
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.table),
		Key:                      s.key(item),
		UpdateExpression:         aws.String("REMOVE " + attrsField + ".#a"),
		ConditionExpression:      aws.String(attrsField + ".#a = :t"),
		ExpressionAttributeNames: map[string]string{"#a": attr.Name},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: store.Tombstone},
		},
	})
	if err != nil {
		// Losing this condition means another deleter got there first.
		if conditionFailed(err) {
			return nil
		}
		return store.StoreError{Op: "remove attribute of " + item, Err: err}
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, item string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(item),
	})
	if err != nil {
		return store.StoreError{Op: "delete item " + item, Err: err}
	}
	return nil
}

func conditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
