// Package arena provides dense append-only storage addressed by typed
// integer handles. Handles are allocated sequentially from zero and are
// never reused, so they stay valid for the arena's whole lifetime.
package arena

// Handle is the constraint for arena index types. Keeping handles as
// uint32 newtypes makes them cheap to copy, totally ordered and usable
// as map keys without exposing what they index.
type Handle interface{ ~uint32 }

type Arena[H Handle, T any] struct {
	items []T
}

func New[H Handle, T any]() *Arena[H, T] {
	return &Arena[H, T]{}
}

// Alloc appends value and returns its handle.
func (a *Arena[H, T]) Alloc(value T) H {
	a.items = append(a.items, value)
	return H(len(a.items) - 1)
}

// Get returns a pointer to the stored value for in-place mutation.
// Pointers are invalidated by the next Alloc.
func (a *Arena[H, T]) Get(handle H) *T {
	return &a.items[uint32(handle)]
}

func (a *Arena[H, T]) Len() int {
	if a == nil {
		return 0
	}
	return len(a.items)
}
