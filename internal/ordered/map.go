// Package ordered provides a string-keyed map that remembers insertion order.
package ordered

import "iter"

// Map is a map that iterates in first-insertion order. Overwriting an
// existing key keeps its original position.
type Map[K comparable, V any] struct {
	keys  []K
	items map[K]V
}

func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{items: make(map[K]V)}
}

func (m *Map[K, V]) Set(key K, value V) {
	if _, ok := m.items[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.items[key] = value
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	v, ok := m.items[key]
	return v, ok
}

func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.items[key]
	return ok
}

// GetOrInsert returns the value stored under key, inserting the result of
// create first if the key has not been seen.
func (m *Map[K, V]) GetOrInsert(key K, create func() V) V {
	if v, ok := m.items[key]; ok {
		return v
	}
	v := create()
	m.Set(key, v)
	return v
}

func (m *Map[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	if m == nil {
		return nil
	}
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}

// All iterates over the entries in insertion order.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(k, m.items[k]) {
				return
			}
		}
	}
}

// Values iterates over the values in insertion order.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(m.items[k]) {
				return
			}
		}
	}
}
