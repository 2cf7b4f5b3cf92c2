package ledger

import (
	"slices"
)

// table это зафиксированные строки одного вида сущностей.
type table[K comparable, V any] struct {
	rows    map[K]*V
	clone   func(*V) *V
	compare func(a, b K) int
}

func newTable[K comparable, V any](clone func(*V) *V, compare func(a, b K) int) *table[K, V] {
	return &table[K, V]{rows: make(map[K]*V), clone: clone, compare: compare}
}

func (t *table[K, V]) sortedKeys() []K {
	keys := make([]K, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, t.compare)
	return keys
}

// overlay это изменения таблицы внутри одной транзакции.
// Чтения возвращают копии, поэтому изменение без put не попадает в состояние.
type overlay[K comparable, V any] struct {
	base  *table[K, V]
	dirty map[K]*V
}

func newOverlay[K comparable, V any](base *table[K, V]) *overlay[K, V] {
	return &overlay[K, V]{base: base, dirty: make(map[K]*V)}
}

func (o *overlay[K, V]) get(key K) (*V, bool) {
	if v, ok := o.dirty[key]; ok {
		return o.base.clone(v), true
	}
	if v, ok := o.base.rows[key]; ok {
		return o.base.clone(v), true
	}
	return nil, false
}

// committed возвращает зафиксированную версию строки без учёта изменений транзакции.
func (o *overlay[K, V]) committed(key K) (*V, bool) {
	v, ok := o.base.rows[key]
	return v, ok
}

func (o *overlay[K, V]) put(key K, v *V) {
	o.dirty[key] = o.base.clone(v)
}

// list возвращает копии всех строк с учётом изменений, отсортированные по ключу.
func (o *overlay[K, V]) list() []*V {
	keys := o.base.sortedKeys()
	for k := range o.dirty {
		if _, ok := o.base.rows[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, o.base.compare)

	out := make([]*V, 0, len(keys))
	for _, k := range keys {
		v, _ := o.get(k)
		out = append(out, v)
	}
	return out
}

func (o *overlay[K, V]) dirtyKeys() []K {
	keys := make([]K, 0, len(o.dirty))
	for k := range o.dirty {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, o.base.compare)
	return keys
}

// merge переносит изменения в зафиксированное состояние.
func (o *overlay[K, V]) merge() {
	for k, v := range o.dirty {
		o.base.rows[k] = v
	}
}
