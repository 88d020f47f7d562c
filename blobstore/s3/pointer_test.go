package s3

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annbind/blobstore"
)

// mockDDBClient is an in-memory DynamoDB stand-in honoring the
// conditional writes the pointer store relies on.
type mockDDBClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	baseURI := params.Item["base_uri"].(*types.AttributeValueMemberS).Value
	version := params.Item["version"].(*types.AttributeValueMemberN).Value
	key := baseURI + ":" + version

	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	baseURI := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value

	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if item["base_uri"].(*types.AttributeValueMemberS).Value == baseURI {
			items = append(items, item)
		}
	}

	// Descending by version, as ScanIndexForward=false would return.
	for i := 0; i < len(items)-1; i++ {
		for j := i + 1; j < len(items); j++ {
			vi := versionOf(items[i])
			vj := versionOf(items[j])
			if vi < vj {
				items[i], items[j] = items[j], items[i]
			}
		}
	}

	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func versionOf(item map[string]types.AttributeValue) int {
	var v int
	fmt.Sscanf(item["version"].(*types.AttributeValueMemberN).Value, "%d", &v)
	return v
}

func (m *mockDDBClient) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	baseURI := params.Key["base_uri"].(*types.AttributeValueMemberS).Value
	version := params.Key["version"].(*types.AttributeValueMemberN).Value
	if item, ok := m.items[baseURI+":"+version]; ok {
		return &dynamodb.GetItemOutput{Item: item}, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDDBClient) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	baseURI := params.Key["base_uri"].(*types.AttributeValueMemberS).Value
	version := params.Key["version"].(*types.AttributeValueMemberN).Value
	delete(m.items, baseURI+":"+version)
	return &dynamodb.DeleteItemOutput{}, nil
}

func newTestPointerStore(ddb *mockDDBClient, baseURI string) *PointerStore {
	blobs := &Store{
		client: &MockS3Client{},
		bucket: "test-bucket",
		prefix: "test/",
	}
	return NewPointerStore(blobs, ddb, "annbind-commits", baseURI)
}

func TestPointerStore_FirstCommit(t *testing.T) {
	ctx := context.Background()
	store := newTestPointerStore(newMockDDBClient(), "s3://test-bucket/test/")

	version, err := store.Commit(ctx, "snapshot-00001.bin")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)

	snapshot, current, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-00001.bin", snapshot)
	assert.Equal(t, uint64(1), current)
}

func TestPointerStore_SequentialCommits(t *testing.T) {
	ctx := context.Background()
	store := newTestPointerStore(newMockDDBClient(), "s3://test-bucket/test/")

	for i := 1; i <= 3; i++ {
		version, err := store.Commit(ctx, fmt.Sprintf("snapshot-%05d.bin", i))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), version)
	}

	snapshot, version, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-00003.bin", snapshot)
	assert.Equal(t, uint64(3), version)
}

func TestPointerStore_CurrentBeforeCommit(t *testing.T) {
	ctx := context.Background()
	store := newTestPointerStore(newMockDDBClient(), "s3://test-bucket/test/")

	_, _, err := store.Current(ctx)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	_, err = store.Open(ctx, CurrentPointer)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestPointerStore_OpenCurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestPointerStore(newMockDDBClient(), "s3://test-bucket/test/")

	require.NoError(t, store.Put(ctx, CurrentPointer, []byte("snapshot-00007.bin")))

	blob, err := store.Open(ctx, CurrentPointer)
	require.NoError(t, err)
	defer blob.Close()

	data, err := blobstore.ReadAll(blob)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-00007.bin", string(data))
}

func TestPointerStore_CreateCurrentRefused(t *testing.T) {
	ctx := context.Background()
	store := newTestPointerStore(newMockDDBClient(), "s3://test-bucket/test/")

	_, err := store.Create(ctx, CurrentPointer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit-only")
}

func TestPointerStore_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	store := newTestPointerStore(newMockDDBClient(), "s3://test-bucket/test/")

	_, err := store.Commit(ctx, "snapshot-00001.bin")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, conflicts := 0, 0

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := store.Commit(ctx, fmt.Sprintf("snapshot-%05d.bin", id+2))
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				successes++
			case ErrConcurrentModification:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Greater(t, successes, 0, "at least one writer should win")
	assert.Equal(t, 5, successes+conflicts)
}

func TestPointerStore_IsolatedNamespaces(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()

	storeA := newTestPointerStore(ddb, "s3://bucket-a/path/")
	storeB := newTestPointerStore(ddb, "s3://bucket-b/path/")

	require.NoError(t, storeA.Put(ctx, CurrentPointer, []byte("snapshot-a.bin")))
	require.NoError(t, storeB.Put(ctx, CurrentPointer, []byte("snapshot-b.bin")))

	snapshot, _, err := storeA.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-a.bin", snapshot)

	snapshot, _, err = storeB.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-b.bin", snapshot)
}
