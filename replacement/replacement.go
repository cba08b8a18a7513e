// Package replacement provides pluggable victim selection over a fixed
// index set, used by the TLB (and sized for any fixed cache).
package replacement

import (
	"github.com/mit-pdos/go-nachos/util"
)

type Strategy interface {
	// FindOneToReplace picks the victim slot.
	FindOneToReplace() int
	// UpdateElementWeight records a use of slot id.
	UpdateElementWeight(id int)
	// ResetStatus forgets all history (e.g. on context switch).
	ResetStatus()
}

// FIFO replaces slots in rotation.
type FIFO struct {
	size      int
	replaceID int
}

func NewFIFO(size int) *FIFO {
	if size <= 0 {
		panic("replacement: non-positive size")
	}
	return &FIFO{size: size}
}

func (f *FIFO) FindOneToReplace() int {
	target := f.replaceID
	f.replaceID = (f.replaceID + 1) % f.size
	util.DPrintf(4, "replacement: FIFO victim %d", target)
	return target
}

func (f *FIFO) UpdateElementWeight(id int) {}

func (f *FIFO) ResetStatus() {
	f.replaceID = 0
}

// LRU replaces the slot with the oldest last-use tick. The clock is
// injected so the strategy does not reach into kernel globals.
type LRU struct {
	size     int
	lastUsed []int64
	now      func() int64
}

func NewLRU(size int, now func() int64) *LRU {
	if size <= 0 {
		panic("replacement: non-positive size")
	}
	l := &LRU{
		size:     size,
		lastUsed: make([]int64, size),
		now:      now,
	}
	l.ResetStatus()
	return l
}

func (l *LRU) FindOneToReplace() int {
	target := 0
	for i := 0; i < l.size; i++ {
		if l.lastUsed[i] < l.lastUsed[target] {
			target = i
		}
	}
	util.DPrintf(4, "replacement: LRU victim %d", target)
	return target
}

func (l *LRU) UpdateElementWeight(id int) {
	l.lastUsed[id] = l.now()
}

func (l *LRU) ResetStatus() {
	for i := range l.lastUsed {
		l.lastUsed[i] = -1
	}
}
