// Package capi declares the engine ABI: the C-style function table through
// which the annbind facade reaches an approximate-nearest-neighbor engine.
//
// The package contains no logic beyond two C-string helpers. It defines the
// opaque index handle, the scalar and metric enumerations, the init options
// struct, the error side-channel slot, the filter predicate signature, and
// the Table of engine entry points. Vector arguments cross the boundary as
// raw pointers plus a scalar kind; result buffers are caller-allocated and
// fixed-capacity; every entry point reports failure through a *Error slot.
//
// Exactly one Table implementation is linked into a build. The default is
// the pure Go reference engine under internal/engine; a cgo-backed native
// engine can provide the same Table without any change to the facade.
//
// Nothing in this package validates anything. Callers (the annbind root
// package) are responsible for shape checks, keep-alive discipline on Go
// memory passed as pointers, and draining the error slot after every call.
package capi
