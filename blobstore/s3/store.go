package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/annbind/blobstore"
	"github.com/hupe1980/annbind/resource"
)

// Client captures the subset of the S3 API the store uses. *s3.Client
// satisfies it; tests substitute a mock.
type Client interface {
	manager.UploadAPIClient
	s3.HeadObjectAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Options configures a store created with New.
type Options struct {
	// Prefix is prepended to all blob names (e.g. "indexes/").
	Prefix string

	// Region overrides the region resolved from the environment.
	Region string

	// Upload tunes multipart uploads.
	Upload UploadConfig

	// Controller, when set, bounds concurrent transfers and shapes IO
	// throughput.
	Controller *resource.Controller
}

// WithPrefix sets the key prefix for all blobs.
func WithPrefix(prefix string) func(*Options) {
	return func(o *Options) {
		o.Prefix = prefix
	}
}

// WithRegion pins the AWS region instead of resolving it from the
// environment.
func WithRegion(region string) func(*Options) {
	return func(o *Options) {
		o.Region = region
	}
}

// WithUploadConfig overrides the multipart upload settings.
func WithUploadConfig(cfg UploadConfig) func(*Options) {
	return func(o *Options) {
		o.Upload = cfg
	}
}

// WithResourceController attaches a controller that limits transfer
// concurrency and IO throughput.
func WithResourceController(rc *resource.Controller) func(*Options) {
	return func(o *Options) {
		o.Controller = rc
	}
}

// Store implements blobstore.Store on top of an S3 bucket.
type Store struct {
	client Client
	bucket string
	prefix string
	upload UploadConfig
	rc     *resource.Controller
}

// New creates a store using credentials and region resolved from the
// environment.
func New(ctx context.Context, bucket string, optFns ...func(*Options)) (*Store, error) {
	opts := Options{Upload: DefaultUploadConfig()}
	for _, fn := range optFns {
		fn(&opts)
	}

	var loadFns []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadFns = append(loadFns, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	store := NewStore(s3.NewFromConfig(cfg), bucket, opts.Prefix)
	store.upload = opts.Upload
	store.rc = opts.Controller
	return store, nil
}

// NewStore creates a store around an existing client. rootPrefix is
// prepended to all keys (e.g. "my-db/").
func NewStore(client Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
		upload: DefaultUploadConfig(),
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open verifies the object exists and returns a blob serving range
// reads against it.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	blob, err := openBlob(ctx, s.client, s.bucket, s.key(name))
	if err != nil {
		return nil, err
	}
	blob.rc = s.rc
	return blob, nil
}

// Create starts a streaming multipart upload. The object becomes
// visible only after Close returns nil.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	uploader := newUploader(s.client, s.upload)
	return newStreamingWritableBlob(ctx, uploader, s.bucket, s.key(name), s.upload, s.rc), nil
}

// Put uploads a blob in one request, with CRC32C validation when
// enabled.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if err := s.rc.AcquireTransfer(ctx); err != nil {
		return err
	}
	defer s.rc.ReleaseTransfer()
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return err
	}

	key := s.key(name)
	if s.upload.EnableChecksum {
		return putWithChecksum(ctx, s.client, s.bucket, key, data)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

// Delete removes the object. Deleting an absent object is not an
// error.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}

// List returns the names under prefix, sorted, with the store's root
// prefix stripped.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return listObjects(ctx, s.client, s.bucket, s.key(prefix), s.prefix)
}

// listObjects pages through a bucket listing and strips rootPrefix from
// the returned names.
func listObjects(ctx context.Context, client Client, bucket, fullPrefix, rootPrefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), rootPrefix)
			rel = strings.TrimPrefix(rel, "/")
			if rel == "" {
				continue
			}
			keys = append(keys, rel)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// openBlob heads the object to learn its size and existence.
func openBlob(ctx context.Context, client Client, bucket, key string) (*s3Blob, error) {
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, blobstore.ErrNotFound
		}
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}

	return &s3Blob{
		client: client,
		bucket: bucket,
		key:    key,
		size:   aws.ToInt64(head.ContentLength),
	}, nil
}

// s3Blob serves reads via ranged GETs. The blob holds no connection
// state, so Close is a no-op.
type s3Blob struct {
	client Client
	bucket string
	key    string
	size   int64
	rc     *resource.Controller
}

func (b *s3Blob) Close() error {
	return nil
}

func (b *s3Blob) Size() int64 {
	return b.size
}

func (b *s3Blob) ReadAt(p []byte, off int64) (int, error) {
	if off >= b.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	if end >= b.size {
		end = b.size - 1
	}

	ctx := context.Background()
	if err := b.rc.AcquireIO(ctx, len(p)); err != nil {
		return 0, err
	}

	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	n, err := io.ReadFull(resp.Body, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// Short read at the object tail. ReaderAt requires a non-nil
		// error whenever n < len(p).
		return n, io.EOF
	}

	// A full range response that is still shorter than p means the read
	// ran into the object tail.
	expected := end - off + 1
	if int64(n) == expected && int64(n) < int64(len(p)) {
		return n, io.EOF
	}

	return n, err
}

// ReadRange streams a byte range without buffering it in memory. The
// caller owns the returned reader.
func (b *s3Blob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= b.size {
		return nil, io.EOF
	}

	end := off + length - 1
	if end >= b.size {
		end = b.size - 1
	}

	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return nil, err
	}

	if b.rc != nil {
		return &limitedBody{ReadCloser: resp.Body, r: resource.NewRateLimitedReader(ctx, resp.Body, b.rc)}, nil
	}
	return resp.Body, nil
}

// limitedBody routes reads through the rate limiter while keeping the
// underlying body's Close.
type limitedBody struct {
	io.ReadCloser
	r io.Reader
}

func (l *limitedBody) Read(p []byte) (int, error) {
	return l.r.Read(p)
}
