package metastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/openmined/bucketsync/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo is a map-backed DynamoAPI. Scan returns one item per page.
type fakeDynamo struct {
	items     map[string]map[string]types.AttributeValue
	order     []string
	putErr    error
	scanCalls int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["id"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	id := keyOf(in.Item)
	if _, ok := f.items[id]; !ok {
		f.order = append(f.order, id)
	}
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	id := keyOf(in.Key)
	delete(f.items, id)
	for i, v := range f.order {
		if v == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scanCalls++
	start := 0
	if in.ExclusiveStartKey != nil {
		last := keyOf(in.ExclusiveStartKey)
		for i, id := range f.order {
			if id == last {
				start = i + 1
			}
		}
	}
	if start >= len(f.order) {
		return &dynamodb.ScanOutput{}, nil
	}
	id := f.order[start]
	out := &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{f.items[id]}}
	if start+1 < len(f.order) {
		out.LastEvaluatedKey = itemKey(id)
	}
	return out, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, _ *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return &dynamodb.CreateTableOutput{}, nil
}

func TestDynamoStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewDynamoStoreWithClient(newFakeDynamo())

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.PutItem(ctx, DefaultTable, &Item{
		ID:           "b7d1",
		FriendlyName: "Photos",
		Organization: "acme",
		CreatedAt:    created,
	}))

	item, err := store.GetItem(ctx, DefaultTable, "b7d1")
	require.NoError(t, err)
	assert.Equal(t, "Photos", item.FriendlyName)
	assert.Equal(t, "acme", item.Organization)
	assert.True(t, created.Equal(item.CreatedAt))

	require.NoError(t, store.DeleteItem(ctx, DefaultTable, "b7d1"))
	_, err = store.GetItem(ctx, DefaultTable, "b7d1")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDynamoStore_ScanAll_Paginates(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	store := NewDynamoStoreWithClient(fake)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.PutItem(ctx, DefaultTable, &Item{ID: id, FriendlyName: id}))
	}

	items, err := store.ScanAll(ctx, DefaultTable)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 3, fake.scanCalls)
	assert.Equal(t, "c", items[2].ID)
}

func TestDynamoStore_Errors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	store := NewDynamoStoreWithClient(fake)

	assert.Error(t, store.PutItem(ctx, DefaultTable, &Item{}))

	fake.putErr = &types.ResourceNotFoundException{Message: aws.String("no table")}
	assert.ErrorIs(t, store.PutItem(ctx, DefaultTable, &Item{ID: "x"}), errs.ErrNotFound)

	fake.putErr = errors.New("throttled")
	assert.ErrorIs(t, store.PutItem(ctx, DefaultTable, &Item{ID: "x"}), errs.ErrIO)
}

func TestDynamoStore_EnsureTable_Existing(t *testing.T) {
	store := NewDynamoStoreWithClient(newFakeDynamo())
	assert.NoError(t, store.EnsureTable(context.Background(), DefaultTable))
	assert.Error(t, store.EnsureTable(context.Background(), "x"))
}
