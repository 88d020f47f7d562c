// Package engine is the reference implementation of the capi function
// table: a pure Go HNSW engine with scalar quantization, snapshot
// persistence (including zero-copy views), filtered and exact search.
//
// The package is internal on purpose. Callers never import it directly;
// they reach it through the capi.Table returned by Table(). The annbind
// root package performs all argument validation, so entry points here
// assume shapes are sane and report only engine-level failures (unknown
// handles, missing keys, malformed snapshots) through the error side
// channel.
//
// Builds that link a native engine provide their own capi.Table and this
// package drops out of the dependency graph.
package engine
