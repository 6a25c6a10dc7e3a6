package session

import "reflect"

// newLike allocates a fresh zero value of the same type *ptr points to,
// used so DefaultHandlers can build each Validate closure from a single
// `new(T)` template without repeating the type at each call site.
func newLike(ptr interface{}) interface{} {
	t := reflect.TypeOf(ptr).Elem()
	return reflect.New(t).Interface()
}
