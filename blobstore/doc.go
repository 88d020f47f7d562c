// Package blobstore provides storage abstraction for index snapshots.
//
// Store is the interface for reading and writing immutable snapshot
// blobs by name. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with mmap-backed reads
//   - MemoryStore: in-memory store for tests
//   - CachingStore: block-level read cache in front of another store
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible object storage
//
// # Custom Implementations
//
// Implement the Store interface to support custom storage backends:
//
//	type Store interface {
//	    Open(ctx, name) (Blob, error)           // open for reading
//	    Create(ctx, name) (WritableBlob, error) // open for writing
//	    Put(ctx, name, data) error              // one-shot write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Blobs that can expose their content without copying should also
// implement Mappable; ReadAll and view loading take advantage of it.
package blobstore
