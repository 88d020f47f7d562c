package annbind

import "github.com/RoaringBitmap/roaring/v2/roaring64"

// AllowKeys builds a filter that admits only the given keys.
func AllowKeys(keys ...uint64) FilterFunc {
	set := roaring64.BitmapOf(keys...)
	return set.Contains
}

// DenyKeys builds a filter that rejects the given keys and admits all
// others.
func DenyKeys(keys ...uint64) FilterFunc {
	set := roaring64.BitmapOf(keys...)
	return func(key uint64) bool { return !set.Contains(key) }
}

// AllowBitmap adapts a roaring bitmap into a filter. The bitmap must
// not be mutated while searches using the filter are in flight.
func AllowBitmap(set *roaring64.Bitmap) FilterFunc {
	if set == nil {
		return func(uint64) bool { return false }
	}
	return set.Contains
}
