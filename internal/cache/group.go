package cache

import (
	"golang.org/x/sync/singleflight"

	"imagekit/internal/imgerr"
)

// Result is what a producer hands to the waiters of its key: the artifact
// location and its encoded format.
type Result struct {
	Path   string
	Format string
}

// Group deduplicates concurrent cache fills for the same key. The first
// requester runs the producer; later requesters block until it finishes and
// share the outcome. A failed producer is evicted so the next request can
// retry.
type Group struct {
	g singleflight.Group
}

func NewGroup() *Group {
	return &Group{}
}

// Do runs fn once per in-flight key. shared reports whether this call was
// merged into another caller's flight. Waiters never share the winner's
// error value; they get a same-kind copy.
func (g *Group) Do(key string, fn func() (Result, error)) (res Result, shared bool, err error) {
	// singleflight also reports shared for the winner once others joined;
	// only a caller whose fn never ran was merged into another flight
	ran := false
	v, err, _ := g.g.Do(key, func() (interface{}, error) {
		ran = true
		return fn()
	})
	shared = !ran
	if err != nil {
		if shared {
			return Result{}, shared, imgerr.Waiter(err)
		}
		return Result{}, shared, err
	}
	return v.(Result), shared, nil
}
