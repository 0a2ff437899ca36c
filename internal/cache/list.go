package cache

// ListCache is a TTLCache over a slice with optimistic item mutation.
// AddToCache and RemoveFromCache only touch an existing valid entry; they
// never populate a cold cache.
type ListCache[T any] struct {
	*TTLCache[[]T]
	idOf func(T) string
}

// NewList creates a ListCache; idOf extracts the identity of an item
func NewList[T any](store Store, opts Options, idOf func(T) string) *ListCache[T] {
	return &ListCache[T]{
		TTLCache: New[[]T](store, opts),
		idOf:     idOf,
	}
}

// AddToCache prepends item to the cached list for key, replacing any item
// with the same id. The entry keeps its original expiry.
func (c *ListCache[T]) AddToCache(key string, item T) {
	e, ok := c.entry(key)
	if !ok {
		return
	}
	id := c.idOf(item)
	items := make([]T, 0, len(e.Data)+1)
	items = append(items, item)
	for _, existing := range e.Data {
		if c.idOf(existing) != id {
			items = append(items, existing)
		}
	}
	e.Data = items
	c.write(key, e)
}

// RemoveFromCache removes the item with id from the cached list for key
func (c *ListCache[T]) RemoveFromCache(key, id string) {
	e, ok := c.entry(key)
	if !ok {
		return
	}
	items := make([]T, 0, len(e.Data))
	for _, existing := range e.Data {
		if c.idOf(existing) != id {
			items = append(items, existing)
		}
	}
	e.Data = items
	c.write(key, e)
}
