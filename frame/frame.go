// Package frame allocates physical page frames. Unlike the rest of the
// kernel's shared state, the allocator is guarded by a lock rather than
// interrupt masking: it is reached from paths that run with interrupts on.
package frame

import (
	"github.com/mit-pdos/go-nachos/bitmap"
	"github.com/mit-pdos/go-nachos/thread"
	"github.com/mit-pdos/go-nachos/util"
)

type Manager struct {
	lock  *thread.Lock
	usage *bitmap.Bitmap
}

func NewManager(numFrames int) *Manager {
	return &Manager{
		lock:  thread.NewLock("frame manager lock"),
		usage: bitmap.New(numFrames),
	}
}

// Acquire returns a free frame number, or -1 when physical memory is
// exhausted.
func (m *Manager) Acquire() int {
	m.lock.Acquire()
	frameNumber := m.usage.FindAndSet()
	m.lock.Release()
	util.DPrintf(3, "frame: acquired %d", frameNumber)
	return frameNumber
}

func (m *Manager) Release(frameNumber int) {
	m.lock.Acquire()
	m.usage.Clear(frameNumber)
	m.lock.Release()
	util.DPrintf(3, "frame: released %d", frameNumber)
}

// NumAvail is the current count of free frames.
func (m *Manager) NumAvail() int {
	m.lock.Acquire()
	n := m.usage.NumClear()
	m.lock.Release()
	return n
}
