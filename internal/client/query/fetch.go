package query

import (
	"context"
	"fmt"
)

// Query describes one cached read. A zero Query is disabled; set Enabled once
// its inputs (an id, the current user) are known.
type Query[T any] struct {
	Key     Key
	Fn      func(ctx context.Context) (T, error)
	Enabled bool
	// Retries is how many times a transient failure is retried.
	Retries int
}

// Fetch returns the cached value of q.Key while it is fresh and otherwise
// loads it with q.Fn, sharing the load with concurrent callers of the same
// key. Disabled queries return ErrDisabled and leave the cache untouched.
func Fetch[T any](ctx context.Context, c *Cache, q Query[T]) (T, error) {
	var zero T
	if !q.Enabled {
		return zero, fmt.Errorf("%w: %s", ErrDisabled, q.Key)
	}

	v, err := c.load(ctx, q.Key, func(ctx context.Context) (any, error) {
		return q.Fn(ctx)
	}, q.Retries, false)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}

	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cached value for %s is %T", q.Key, v)
	}
	return t, nil
}
