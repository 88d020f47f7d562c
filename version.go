package annbind

import "github.com/hupe1980/annbind/capi"

// Version reports the version string of the bound engine.
func Version(optFns ...Option) string {
	o := applyOptions(optFns)
	return capi.GoString(o.table.Version())
}
