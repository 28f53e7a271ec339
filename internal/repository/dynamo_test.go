package repository

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory stand-in for the DynamoDB operations the
// stores use. It emulates just enough of the update-expression semantics
// the rate limiter relies on.
type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue

	getErr    error
	putErr    error
	deleteErr error
	updateErr error

	updates []*dynamodb.UpdateItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(key map[string]types.AttributeValue) string {
	pk := key["PK"].(*types.AttributeValueMemberS).Value
	sk := key["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	key := itemKey(in.Key)
	old := f.items[key]
	delete(f.items, key)
	return &dynamodb.DeleteItemOutput{Attributes: old}, nil
}

// UpdateItem emulates "SET #ttl = if_not_exists(#ttl, :exp) ADD #c :one".
func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, in)

	key := itemKey(in.Key)
	item := f.items[key]
	if item == nil {
		item = map[string]types.AttributeValue{
			"PK": in.Key["PK"],
			"SK": in.Key["SK"],
		}
		f.items[key] = item
	}

	if _, ok := item["ttl"]; !ok {
		item["ttl"] = in.ExpressionAttributeValues[":exp"]
	}

	var count int64
	if existing, ok := item["count"].(*types.AttributeValueMemberN); ok {
		count, _ = strconv.ParseInt(existing.Value, 10, 64)
	}
	one := in.ExpressionAttributeValues[":one"].(*types.AttributeValueMemberN)
	inc, _ := strconv.ParseInt(one.Value, 10, 64)
	item["count"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(count+inc, 10)}

	return &dynamodb.UpdateItemOutput{}, nil
}
