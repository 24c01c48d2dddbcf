// internal/kernel/arena.go

package kernel

import (
	"encoding/binary"
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	bytesize "github.com/inhies/go-bytesize"
)

const (
	// StackAlignment is the granularity of every region handed out.
	StackAlignment = 8
	// stackCanary sits in the lowest word of each region; a task that runs off
	// the bottom of its stack overwrites it.
	stackCanary uint32 = 0xDEADBEEF
)

// Region is a half-open byte range [Offset, Offset+Size) of the arena.
type Region struct {
	Offset uint32
	Size   uint32
}

// End returns the first offset past the region, i.e. the initial stack top.
func (r Region) End() uint32 { return r.Offset + r.Size }

// Overlaps reports whether r and o share at least one byte.
func (r Region) Overlaps(o Region) bool {
	return r.Size > 0 && o.Size > 0 && r.Offset < o.End() && o.Offset < r.End()
}

func (r Region) String() string {
	return fmt.Sprintf("[%#x, %#x) %s", r.Offset, r.End(), bytesize.New(float64(r.Size)))
}

// Arena is the fixed-capacity pool task stacks are carved from.
//
// In bump mode (the default) memory only ever moves forward: regions never
// interleave, never coalesce and are never returned, so exhaustion lasts for
// the rest of the session. In reclaim mode freed regions go to an
// offset-ordered free list that is searched first-fit before the bump cursor.
type Arena struct {
	mem      []byte
	cursor   uint32 // bump pointer, which is also the high-water mark
	inUse    uint32
	minStack uint32
	maxStack uint32
	reclaim  bool
	free     *treemap.Map // offset -> size, reclaim mode only
}

// NewArena creates an arena of capacity bytes accepting stacks in
// [minStack, maxStack].
func NewArena(capacity, minStack, maxStack uint32, reclaim bool) *Arena {
	return &Arena{
		mem:      make([]byte, capacity),
		minStack: minStack,
		maxStack: maxStack,
		reclaim:  reclaim,
		free:     treemap.NewWith(utils.UInt32Comparator),
	}
}

// Allocate carves a region of at least size bytes.
func (a *Arena) Allocate(size uint32) (Region, error) {
	if size < a.minStack || size > a.maxStack {
		return Region{}, fmt.Errorf("%w: %d bytes (allowed %d..%d)", ErrInvalidSize, size, a.minStack, a.maxStack)
	}
	size = alignUp(size)

	if r, ok := a.takeFree(size); ok {
		a.commit(r)
		return r, nil
	}

	if uint64(a.cursor)+uint64(size) > uint64(len(a.mem)) {
		return Region{}, fmt.Errorf("%w: need %d bytes, %d left", ErrOutOfMemory, size, uint32(len(a.mem))-a.cursor)
	}
	r := Region{Offset: a.cursor, Size: size}
	a.cursor += size
	a.commit(r)
	return r, nil
}

func (a *Arena) commit(r Region) {
	a.inUse += r.Size
	clear(a.mem[r.Offset:r.End()])
	binary.LittleEndian.PutUint32(a.mem[r.Offset:], stackCanary)
}

// takeFree is first-fit over the free list, splitting the block it uses.
func (a *Arena) takeFree(size uint32) (Region, bool) {
	if !a.reclaim {
		return Region{}, false
	}
	it := a.free.Iterator()
	for it.Next() {
		off, blk := it.Key().(uint32), it.Value().(uint32)
		if blk < size {
			continue
		}
		a.free.Remove(off)
		if rest := blk - size; rest > 0 {
			a.free.Put(off+size, rest)
		}
		return Region{Offset: off, Size: size}, true
	}
	return Region{}, false
}

// Free returns r to the pool in reclaim mode and reports whether it did.
// Bump mode never frees.
func (a *Arena) Free(r Region) bool {
	if !a.reclaim || r.Size == 0 {
		return false
	}
	a.inUse -= r.Size
	off, size := r.Offset, r.Size

	// Coalesce with the neighbours on either side.
	if k, v := a.free.Floor(off); k != nil {
		if pk, ps := k.(uint32), v.(uint32); pk+ps == off {
			a.free.Remove(pk)
			off, size = pk, size+ps
		}
	}
	if k, v := a.free.Ceiling(off + size); k != nil {
		if nk, ns := k.(uint32), v.(uint32); nk == off+size {
			a.free.Remove(nk)
			size += ns
		}
	}
	a.free.Put(off, size)
	return true
}

// Capacity is the total pool size in bytes.
func (a *Arena) Capacity() uint32 { return uint32(len(a.mem)) }

// HighWater is the furthest the bump cursor has advanced.
func (a *Arena) HighWater() uint32 { return a.cursor }

// InUse is the number of bytes held by live regions.
func (a *Arena) InUse() uint32 { return a.inUse }

// Reclaiming reports whether the arena runs in reclaim mode.
func (a *Arena) Reclaiming() bool { return a.reclaim }

func (a *Arena) canaryIntact(r Region) bool {
	return binary.LittleEndian.Uint32(a.mem[r.Offset:]) == stackCanary
}

func alignUp(n uint32) uint32 {
	return (n + StackAlignment - 1) &^ (StackAlignment - 1)
}
