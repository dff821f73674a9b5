package dynamostore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient is an in-memory stand-in for DynamoDB covering exactly the
// call shapes this store emits: conditional full-image puts, the
// REMOVE-one-map-entry update, consistent gets and a paginated scan.
// Hooks let tests interleave mutations mid-operation to provoke the
// races the store has to survive.
type fakeClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	// scanPageSize bounds items per scan page; zero means everything in
	// one page.
	scanPageSize int

	// beforePut and beforeUpdate run (locked) before the respective
	// operation evaluates its condition.
	beforePut    func(c *fakeClient)
	beforeUpdate func(c *fakeClient)
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(key map[string]types.AttributeValue) (string, error) {
	member, ok := key[keyField].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("fake: key %q must be a string", keyField)
	}
	return member.Value, nil
}

func (c *fakeClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := c.items[name]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (c *fakeClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.beforePut != nil {
		hook := c.beforePut
		c.beforePut = nil
		hook(c)
	}
	name, err := itemKey(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression,
			params.ExpressionAttributeNames, params.ExpressionAttributeValues, c.items[name])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	c.items[name] = copyItem(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (c *fakeClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.beforeUpdate != nil {
		hook := c.beforeUpdate
		c.beforeUpdate = nil
		hook(c)
	}
	name, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	item := c.items[name]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression,
			params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	expr := strings.TrimSpace(*params.UpdateExpression)
	path, ok := strings.CutPrefix(expr, "REMOVE ")
	if !ok {
		return nil, fmt.Errorf("fake: unsupported update expression %q", expr)
	}
	if err := removePath(item, strings.TrimSpace(path), params.ExpressionAttributeNames); err != nil {
		return nil, err
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (c *fakeClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	delete(c.items, name)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (c *fakeClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.items))
	for name := range c.items {
		names = append(names, name)
	}
	sort.Strings(names)

	start := 0
	if params.ExclusiveStartKey != nil {
		after, err := itemKey(params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		start = sort.SearchStrings(names, after) + 1
	}
	end := len(names)
	if c.scanPageSize > 0 && start+c.scanPageSize < end {
		end = start + c.scanPageSize
	}

	out := &dynamodb.ScanOutput{}
	for _, name := range names[start:end] {
		out.Items = append(out.Items, copyItem(c.items[name]))
	}
	if end < len(names) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			keyField: &types.AttributeValueMemberS{Value: names[end-1]},
		}
	}
	return out, nil
}

// setAttr reaches into an item's attribute map, bypassing the store.
func (c *fakeClient) setAttr(item, attr, value string) {
	attrs := c.items[item][attrsField].(*types.AttributeValueMemberM)
	attrs.Value[attr] = &types.AttributeValueMemberS{Value: value}
}

func (c *fakeClient) dropAttr(item, attr string) {
	attrs := c.items[item][attrsField].(*types.AttributeValueMemberM)
	delete(attrs.Value, attr)
}

func (c *fakeClient) bumpVersion(item string) {
	ver := c.items[item][versionField].(*types.AttributeValueMemberN)
	ver.Value = "9" + ver.Value
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		if m, ok := v.(*types.AttributeValueMemberM); ok {
			nested := make(map[string]types.AttributeValue, len(m.Value))
			for nk, nv := range m.Value {
				nested[nk] = nv
			}
			out[k] = &types.AttributeValueMemberM{Value: nested}
			continue
		}
		out[k] = v
	}
	return out
}

// evalCondition handles the condition shapes the store builds:
// "attribute_not_exists (#ref)" and "ref = :value" where ref is a
// placeholder or a dotted path through the attribute map.
func evalCondition(cond string, names map[string]string, values, item map[string]types.AttributeValue) (bool, error) {
	cond = strings.TrimSpace(cond)
	if rest, ok := strings.CutPrefix(cond, "attribute_not_exists"); ok {
		ref := strings.Trim(rest, " ()")
		_, exists := resolvePath(item, ref, names)
		return !exists, nil
	}
	lhs, rhs, ok := strings.Cut(cond, "=")
	if !ok {
		return false, fmt.Errorf("fake: unsupported condition %q", cond)
	}
	got, exists := resolvePath(item, strings.TrimSpace(lhs), names)
	if !exists {
		return false, nil
	}
	want, ok := values[strings.TrimSpace(rhs)]
	if !ok {
		return false, fmt.Errorf("fake: unbound value in condition %q", cond)
	}
	return reflect.DeepEqual(got, want), nil
}

func resolvePath(item map[string]types.AttributeValue, ref string, names map[string]string) (types.AttributeValue, bool) {
	current := item
	segments := strings.Split(ref, ".")
	for i, segment := range segments {
		name := segment
		if strings.HasPrefix(segment, "#") {
			resolved, ok := names[segment]
			if !ok {
				return nil, false
			}
			name = resolved
		}
		value, ok := current[name]
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return value, true
		}
		nested, ok := value.(*types.AttributeValueMemberM)
		if !ok {
			return nil, false
		}
		current = nested.Value
	}
	return nil, false
}

func removePath(item map[string]types.AttributeValue, ref string, names map[string]string) error {
	segments := strings.Split(ref, ".")
	current := item
	for _, segment := range segments[:len(segments)-1] {
		name := segment
		if strings.HasPrefix(segment, "#") {
			name = names[segment]
		}
		nested, ok := current[name].(*types.AttributeValueMemberM)
		if !ok {
			return fmt.Errorf("fake: path %q does not resolve to a map", ref)
		}
		current = nested.Value
	}
	last := segments[len(segments)-1]
	if strings.HasPrefix(last, "#") {
		last = names[last]
	}
	delete(current, last)
	return nil
}
