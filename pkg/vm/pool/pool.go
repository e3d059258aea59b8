// Package pool implements the memory-mapped slab allocator spec 12
// calls out as the DSRMemory/Allocator swap point: a Pool satisfies
// vm.Allocator, letting an embedder back every Instance's field slots
// with one contiguous mapping instead of a discrete Go slice per
// object.
package pool

import (
	"fmt"
	"os"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
)

// Pool is a bump allocator over a fixed-size, memory-mapped int32
// arena. It never frees individual slot ranges — instances live and
// die at the Go-slice level above it, same as the default allocator —
// this only changes where the bytes backing them live.
type Pool struct {
	file   *os.File
	region mmap.MMap
	data   []int32
	offset int
}

// Open creates a pool backed by a sizeBytes-long anonymous temp file,
// memory-mapped read/write. The file is unlinked immediately after
// mapping; the open descriptor and the mapping itself keep the storage
// alive until Close.
func Open(sizeBytes int) (*Pool, error) {
	f, err := os.CreateTemp("", "classvm-pool-*")
	if err != nil {
		return nil, fmt.Errorf("pool: create backing file: %w", err)
	}
	name := f.Name()
	if err := f.Truncate(int64(sizeBytes)); err != nil {
		f.Close()
		os.Remove(name)
		return nil, fmt.Errorf("pool: size backing file: %w", err)
	}
	region, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		os.Remove(name)
		return nil, fmt.Errorf("pool: mmap: %w", err)
	}
	os.Remove(name)

	data := unsafe.Slice((*int32)(unsafe.Pointer(&region[0])), len(region)/4)
	return &Pool{file: f, region: region, data: data}, nil
}

// NewSlots carves the next n int32 slots out of the arena, zeroed.
// NewSlots satisfies vm.Allocator. It panics if the arena is
// exhausted — this is a fixed-size pool, not a resizable heap, and
// running out means the embedder sized it too small for the workload.
func (p *Pool) NewSlots(n int) []int32 {
	if n == 0 {
		return nil
	}
	if p.offset+n > len(p.data) {
		panic(fmt.Sprintf("pool: exhausted: requested %d slots, %d remain", n, len(p.data)-p.offset))
	}
	slots := p.data[p.offset : p.offset+n : p.offset+n]
	for i := range slots {
		slots[i] = 0
	}
	p.offset += n
	return slots
}

// Used reports how many slots have been carved out so far.
func (p *Pool) Used() int { return p.offset }

// Cap reports the arena's total capacity in slots.
func (p *Pool) Cap() int { return len(p.data) }

// Close unmaps the region and releases the backing file descriptor.
// Any slices previously returned by NewSlots become invalid.
func (p *Pool) Close() error {
	if err := p.region.Unmap(); err != nil {
		return err
	}
	return p.file.Close()
}
