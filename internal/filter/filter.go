package filter

import (
	"github.com/RoaringBitmap/roaring"
)

// IdFilter wraps a roaring bitmap of point ids excluded from query results,
// e.g. to leave a training point out of its own candidate set.
type IdFilter struct {
	bitmap *roaring.Bitmap
}

// NewIdFilter creates a new empty IdFilter
func NewIdFilter() *IdFilter {
	return &IdFilter{
		bitmap: roaring.New(),
	}
}

// NewIdFilterFrom creates an IdFilter from an existing bitmap
func NewIdFilterFrom(bitmap *roaring.Bitmap) *IdFilter {
	return &IdFilter{
		bitmap: bitmap,
	}
}

// Add adds an ID to the filter
func (f *IdFilter) Add(id uint32) {
	f.bitmap.Add(id)
}

// AddAll adds multiple IDs to the filter
func (f *IdFilter) AddAll(ids []uint32) {
	for _, id := range ids {
		f.Add(id)
	}
}

// Filter checks if an ID is in the filter
func (f *IdFilter) Filter(id uint32) bool {
	return f.bitmap.Contains(id)
}

// IsEmpty reports whether the filter excludes nothing
func (f *IdFilter) IsEmpty() bool {
	return f.bitmap.IsEmpty()
}

// RemoveFrom drops every filtered ID from the candidate set
func (f *IdFilter) RemoveFrom(candidates *roaring.Bitmap) {
	candidates.AndNot(f.bitmap)
}

// GetBitmap returns the underlying roaring bitmap
func (f *IdFilter) GetBitmap() *roaring.Bitmap {
	return f.bitmap
}

// Clone creates a copy of the filter
func (f *IdFilter) Clone() *IdFilter {
	return &IdFilter{
		bitmap: f.bitmap.Clone(),
	}
}
