package domain

import (
	"iter"

	"go.trai.ch/zerr"
)

// PrevIndex addresses a node of the previous run's graph.
// It is only meaningful relative to the SerializedGraph it came from.
type PrevIndex uint32

// CurIndex addresses a node of the graph being recorded by the current run.
type CurIndex uint32

// Index is the set of dense index types accepted by IndexVec.
type Index interface {
	~uint32
}

// IndexVec is a slice addressed by a typed index, so indices of one numbering
// space cannot be used against arrays of another.
type IndexVec[I Index, T any] struct {
	items []T
}

// NewIndexVec returns an empty IndexVec with room for capacity items.
func NewIndexVec[I Index, T any](capacity int) IndexVec[I, T] {
	return IndexVec[I, T]{items: make([]T, 0, capacity)}
}

// IndexVecFrom adopts items without copying.
func IndexVecFrom[I Index, T any](items []T) IndexVec[I, T] {
	return IndexVec[I, T]{items: items}
}

// Len returns the number of items.
func (v *IndexVec[I, T]) Len() int {
	return len(v.items)
}

// InBounds reports whether i addresses an item.
func (v *IndexVec[I, T]) InBounds(i I) bool {
	return int(i) < len(v.items)
}

// Push appends t and returns its index.
func (v *IndexVec[I, T]) Push(t T) I {
	v.items = append(v.items, t)
	return I(len(v.items) - 1)
}

// Get returns the item at i. An out-of-range index is a programming error and panics.
func (v *IndexVec[I, T]) Get(i I) T {
	v.check(i)
	return v.items[i]
}

// At returns a pointer to the item at i, for items that must not be copied.
func (v *IndexVec[I, T]) At(i I) *T {
	v.check(i)
	return &v.items[i]
}

// Set replaces the item at i.
func (v *IndexVec[I, T]) Set(i I, t T) {
	v.check(i)
	v.items[i] = t
}

// All iterates items in index order.
func (v *IndexVec[I, T]) All() iter.Seq2[I, T] {
	return func(yield func(I, T) bool) {
		for i, t := range v.items {
			if !yield(I(i), t) {
				return
			}
		}
	}
}

func (v *IndexVec[I, T]) check(i I) {
	if int(i) >= len(v.items) {
		panic(zerr.With(zerr.With(ErrIndexOutOfRange, "index", uint32(i)), "len", len(v.items)))
	}
}
