package vm

import "github.com/kristofer/classvm/pkg/ir"

// Handle addresses a live instance in an InstanceRegistry. The zero
// value is the null handle — spec 3's null literal compiles to it, and
// every native-typed slot starts out holding it.
type Handle int32

// Instance is a single allocated object: the class it was constructed
// as, and its effective (inherited + own) field slots, one raw int32
// payload per field in EffectiveData() order.
type Instance struct {
	Class *ir.ClassIR
	Data  []int32
}

// Allocator is the slot-allocation swap point spec 12 calls out: the
// default InstanceRegistry backs Data with a plain make([]int32, n);
// an embedder under memory pressure can supply one backed by a slab
// (pkg/vm/pool) instead.
type Allocator interface {
	NewSlots(n int) []int32
}

type defaultAllocator struct{}

func (defaultAllocator) NewSlots(n int) []int32 { return make([]int32, n) }

// InstanceRegistry owns every live instance for one VM, refcounted the
// way original_source's CountedPtr manages native object lifetime: a
// newly allocated instance starts at refcount 1 (the handle returned to
// its allocator), Retain/Release adjust it as the handle is copied into
// or out of persistent storage (fields, locals, parameters — not
// transient stack slots, which are never retained/released on their
// own), and it is freed the moment its count reaches zero.
type InstanceRegistry struct {
	alloc     Allocator
	instances map[Handle]*Instance
	refcount  map[Handle]int
	next      Handle
}

// NewInstanceRegistry returns an empty registry backed by plain slices.
func NewInstanceRegistry() *InstanceRegistry {
	return NewInstanceRegistryWithAllocator(defaultAllocator{})
}

// NewInstanceRegistryWithAllocator returns an empty registry backed by
// the given Allocator (spec 12's DSRMemory swap point).
func NewInstanceRegistryWithAllocator(a Allocator) *InstanceRegistry {
	return &InstanceRegistry{
		alloc:     a,
		instances: make(map[Handle]*Instance),
		refcount:  make(map[Handle]int),
		next:      1,
	}
}

// Alloc creates a fresh instance of class, with a zeroed slot for every
// entry in its effective data layout, and returns a handle holding one
// reference.
func (r *InstanceRegistry) Alloc(class *ir.ClassIR) Handle {
	h := r.next
	r.next++
	r.instances[h] = &Instance{Class: class, Data: r.alloc.NewSlots(len(class.EffectiveData()))}
	r.refcount[h] = 1
	return h
}

// Get returns the instance a handle addresses, or false for the null
// handle or one that has already been released to zero.
func (r *InstanceRegistry) Get(h Handle) (*Instance, bool) {
	if h == 0 {
		return nil, false
	}
	inst, ok := r.instances[h]
	return inst, ok
}

// Retain adds a reference. The null handle is a no-op.
func (r *InstanceRegistry) Retain(h Handle) {
	if h == 0 {
		return
	}
	r.refcount[h]++
}

// Release drops a reference, freeing the instance once the count
// reaches zero. The null handle is a no-op.
func (r *InstanceRegistry) Release(h Handle) {
	if h == 0 {
		return
	}
	r.refcount[h]--
	if r.refcount[h] <= 0 {
		delete(r.instances, h)
		delete(r.refcount, h)
	}
}

// Live reports how many instances are currently allocated, for tests
// and diagnostics.
func (r *InstanceRegistry) Live() int { return len(r.instances) }
