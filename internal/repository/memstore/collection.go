package memstore

import "encoding/json"

// Collection is an ordered, append-only sequence of records. Lookups scan in
// insertion order and return the first match.
type Collection[T any] struct {
	items []T
}

func (c *Collection[T]) Append(v T) {
	c.items = append(c.items, v)
}

// All returns a copy of the records in insertion order. An empty collection
// yields an empty, non-nil slice.
func (c *Collection[T]) All() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[T]) FindBy(pred func(T) bool) (T, bool) {
	for _, v := range c.items {
		if pred(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func (c *Collection[T]) Filter(pred func(T) bool) []T {
	var out []T
	for _, v := range c.items {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}

// UpdateWhere applies mutate to every matching record in place and reports how
// many records changed.
func (c *Collection[T]) UpdateWhere(pred func(T) bool, mutate func(*T)) int {
	n := 0
	for i := range c.items {
		if pred(c.items[i]) {
			mutate(&c.items[i])
			n++
		}
	}
	return n
}

func (c *Collection[T]) Len() int { return len(c.items) }

func (c Collection[T]) clone() Collection[T] {
	return Collection[T]{items: c.All()}
}

func (c Collection[T]) MarshalJSON() ([]byte, error) {
	if c.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}

func (c *Collection[T]) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &c.items)
}
