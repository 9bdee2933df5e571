package book

import "github.com/puzpuzpuz/xsync/v3"

// Registry maps SecurityId to Book. Unique keys, insertion order
// irrelevant. Exactly one driver owns a Registry at a time; it is never
// concurrently mutated, but the Fast variant's backing map is still a
// low-collision, integer-keyed implementation, to keep Get/GetOrCreate
// off a chaining hash map's worst case under adversarial security ids.
type Registry interface {
	Get(id uint64) (*Book, bool)
	// GetOrCreate returns the existing book for id, or calls create and
	// stores its result if none exists yet (the "late joiner" path).
	GetOrCreate(id uint64, create func() *Book) *Book
	Put(id uint64, b *Book)
	// Range visits every entry; if fn returns false, iteration stops.
	Range(fn func(id uint64, b *Book) bool)
	Len() int
}

// MapRegistry is the Reference driver's registry: a plain Go map.
type MapRegistry struct {
	m map[uint64]*Book
}

func NewMapRegistry() *MapRegistry {
	return &MapRegistry{m: make(map[uint64]*Book)}
}

func (r *MapRegistry) Get(id uint64) (*Book, bool) {
	b, ok := r.m[id]
	return b, ok
}

func (r *MapRegistry) GetOrCreate(id uint64, create func() *Book) *Book {
	if b, ok := r.m[id]; ok {
		return b
	}
	b := create()
	r.m[id] = b
	return b
}

func (r *MapRegistry) Put(id uint64, b *Book) { r.m[id] = b }

func (r *MapRegistry) Range(fn func(id uint64, b *Book) bool) {
	for id, b := range r.m {
		if !fn(id, b) {
			return
		}
	}
}

func (r *MapRegistry) Len() int { return len(r.m) }

// FastRegistry is the Fast driver's registry: a low-collision,
// integer-keyed concurrent map (github.com/puzpuzpuz/xsync/v3). The
// drivers in this module never touch a Registry from more than one
// goroutine, but xsync.MapOf's sharded, low-collision layout is the
// right shape for the Fast path regardless.
type FastRegistry struct {
	m *xsync.MapOf[uint64, *Book]
}

func NewFastRegistry() *FastRegistry {
	return &FastRegistry{m: xsync.NewMapOf[uint64, *Book]()}
}

func (r *FastRegistry) Get(id uint64) (*Book, bool) {
	return r.m.Load(id)
}

func (r *FastRegistry) GetOrCreate(id uint64, create func() *Book) *Book {
	b, _ := r.m.LoadOrCompute(id, create)
	return b
}

func (r *FastRegistry) Put(id uint64, b *Book) { r.m.Store(id, b) }

func (r *FastRegistry) Range(fn func(id uint64, b *Book) bool) {
	r.m.Range(fn)
}

func (r *FastRegistry) Len() int { return r.m.Size() }
