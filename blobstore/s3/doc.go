// Package s3 provides an S3 implementation of the blobstore.Store
// interface for index snapshots.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("indexes/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	err = idx.SaveTo(ctx, store, "products.annb")
//
// # Features
//
//   - Range reads for partial snapshot fetches
//   - Multipart uploads with CRC32C integrity validation
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//   - Optional throughput shaping via resource.Controller
//
// PointerStore layers DynamoDB conditional writes on top for an atomic
// "current snapshot" pointer, letting concurrent publishers coordinate
// without overwriting each other. ExpressStore targets S3 Express One
// Zone directory buckets and adds conditional create semantics.
package s3
