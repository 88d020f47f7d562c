// Package annbind provides a safe Go binding for an approximate nearest
// neighbor (ANN) engine exposed through a C-style function table.
//
// The engine side is a flat set of functions operating on opaque index
// handles, with an error side channel instead of return codes. This
// package wraps that surface with production-ready features including:
//
//   - Opaque handle lifecycle: Close is idempotent and irreversible, and
//     a finalizer backstops indexes that are never closed
//   - Input validation before any engine call, with typed errors
//   - Error side-channel translation at a single point
//   - Fixed-capacity result buffer marshalling for searches
//   - A predicate bridge so Go closures can filter engine traversals
//   - Brute-force batch search over caller-owned datasets
//   - Snapshot persistence to files, byte slices and blob stores
//   - Structured logging (slog) and pluggable metrics collection
//
// The bundled in-process engine backs the default function table;
// alternative builds can swap in a table around a native library with
// WithTable.
//
// # Quick Start
//
// Create an index, insert vectors, and search:
//
//	idx, err := annbind.NewIndex(annbind.DefaultConfig(4))
//	if err != nil {
//	    panic(err)
//	}
//	defer idx.Close()
//
//	_ = idx.Add(42, []float32{0.1, 0.2, 0.3, 0.4})
//
//	matches, err := idx.Search([]float32{0.1, 0.2, 0.3, 0.4}, 10)
//	for _, m := range matches {
//	    fmt.Println(m.Key, m.Distance)
//	}
//
// Filtered search with a Go predicate:
//
//	matches, err = idx.FilteredSearch(query, 10, func(key uint64) bool {
//	    return key%2 == 0
//	})
//
// Persist and restore:
//
//	_ = idx.SaveToFile("index.ann")
//	restored, err := annbind.NewFromFile("index.ann")
//
// # Tuning
//
// IndexConfig exposes the usual HNSW-style knobs: Connectivity bounds
// the graph degree, ExpansionAdd and ExpansionSearch trade construction
// and query cost for recall. All have serviceable defaults.
//
// # Concurrency
//
// An Index is safe for concurrent use. Operations are synchronous: each
// call blocks until the engine returns, and none are cancellable. The
// native handle is exclusively owned by its Index and must never be
// shared across two instances.
package annbind
