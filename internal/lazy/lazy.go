// Package lazy memoizes an expensive, fallible, zero-argument computation.
package lazy

// Value runs its initializer at most once successfully and hands the cached
// result to every later caller. A failed run is not cached: the next Get
// runs the initializer again.
//
// A Value is not safe for concurrent use. It is meant to be scoped to one
// unit of work, such as processing a single package file. Use a pointer
// type for T when consumers should share one instance of the result.
type Value[T any] struct {
	init  func() (T, error)
	value T
	done  bool
}

// New returns a Value backed by init.
func New[T any](init func() (T, error)) *Value[T] {
	return &Value[T]{init: init}
}

// Get returns the cached result, running the initializer if no successful
// result is cached yet.
func (v *Value[T]) Get() (T, error) {
	if v.done {
		return v.value, nil
	}

	value, err := v.init()
	if err != nil {
		var zero T
		return zero, err
	}
	v.value = value
	v.done = true
	return value, nil
}

// Done reports whether a successful result is cached.
func (v *Value[T]) Done() bool {
	return v.done
}
