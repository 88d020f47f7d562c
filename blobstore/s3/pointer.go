package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/annbind/blobstore"
)

// CurrentPointer is the reserved blob name that resolves to the most
// recently committed snapshot name.
const CurrentPointer = "CURRENT"

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ErrConcurrentModification is returned when another writer committed a
// version between read and write.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// PointerStore layers an atomic "current snapshot" pointer over an S3
// store. Snapshot blobs live in S3; the pointer lives in DynamoDB,
// whose conditional writes provide the compare-and-swap S3 lacks, so
// concurrent publishers cannot silently overwrite each other.
//
// Table schema:
//   - Partition key: base_uri (string), the logical index location
//   - Sort key: version (number), monotonically increasing
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name annbind-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type PointerStore struct {
	blobs     *Store
	ddbClient DDBClient
	tableName string
	baseURI   string
}

// NewPointerStore creates a pointer store. baseURI identifies the index
// within the commit table, conventionally "s3://bucket/prefix".
func NewPointerStore(blobs *Store, ddbClient DDBClient, tableName, baseURI string) *PointerStore {
	return &PointerStore{
		blobs:     blobs,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Open opens a blob. Opening CurrentPointer yields a virtual blob whose
// content is the committed snapshot name.
func (s *PointerStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name == CurrentPointer {
		snapshot, _, err := s.Current(ctx)
		if err != nil {
			return nil, err
		}
		return pointerBlob{bytes.NewReader([]byte(snapshot))}, nil
	}
	return s.blobs.Open(ctx, name)
}

// Put writes a blob. Writing CurrentPointer commits data as the new
// snapshot name through a conditional write.
func (s *PointerStore) Put(ctx context.Context, name string, data []byte) error {
	if name == CurrentPointer {
		_, err := s.Commit(ctx, string(data))
		return err
	}
	return s.blobs.Put(ctx, name, data)
}

// Create streams a new blob into the underlying store. The pointer
// itself cannot be streamed; commit it with Put or Commit.
func (s *PointerStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if name == CurrentPointer {
		return nil, fmt.Errorf("%q is commit-only, use Put or Commit", CurrentPointer)
	}
	return s.blobs.Create(ctx, name)
}

// Delete removes a blob from the underlying store.
func (s *PointerStore) Delete(ctx context.Context, name string) error {
	return s.blobs.Delete(ctx, name)
}

// List lists blobs in the underlying store.
func (s *PointerStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.blobs.List(ctx, prefix)
}

// Current returns the committed snapshot name and its version. It
// returns blobstore.ErrNotFound before the first commit.
func (s *PointerStore) Current(ctx context.Context) (string, uint64, error) {
	version, snapshot, err := s.latestVersion(ctx)
	if err != nil {
		return "", 0, err
	}
	if version == 0 {
		return "", 0, blobstore.ErrNotFound
	}
	return snapshot, version, nil
}

// Commit atomically advances the pointer to snapshot and returns the
// new version. ErrConcurrentModification means another writer won the
// race; re-read Current and retry.
func (s *PointerStore) Commit(ctx context.Context, snapshot string) (uint64, error) {
	currentVersion, _, err := s.latestVersion(ctx)
	if err != nil {
		return 0, err
	}
	newVersion := currentVersion + 1

	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":      &types.AttributeValueMemberS{Value: s.baseURI},
			"version":       &types.AttributeValueMemberN{Value: strconv.FormatUint(newVersion, 10)},
			"snapshot_path": &types.AttributeValueMemberS{Value: snapshot},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, ErrConcurrentModification
		}
		return 0, fmt.Errorf("commit version %d: %w", newVersion, err)
	}
	return newVersion, nil
}

// latestVersion queries the newest committed version, zero when the
// pointer was never committed.
func (s *PointerStore) latestVersion(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query commit table: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("commit item missing version attribute")
	}
	pathAttr, ok := item["snapshot_path"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("commit item missing snapshot_path attribute")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse version: %w", err)
	}
	return version, pathAttr.Value, nil
}

// pointerBlob is the in-memory blob serving the resolved pointer
// content.
type pointerBlob struct {
	*bytes.Reader
}

func (pointerBlob) Close() error {
	return nil
}
