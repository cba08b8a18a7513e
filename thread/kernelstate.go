package thread

import (
	"github.com/mit-pdos/go-nachos/interrupt"
	"github.com/mit-pdos/go-nachos/stats"
)

// The current thread and the scheduler are process-wide state touched by
// nearly every kernel entry. All mutation happens with interrupts masked, so
// no further synchronization is needed (uniprocessor model: exactly one
// kernel goroutine executes at a time, enforced by the context-switch
// handoff).
var (
	currentThread *Thread
	sched         *Scheduler
	intr          *interrupt.Interrupt
	st            *stats.Stats
	tlbFlush      func()
)

// AddressSpace is what the thread layer needs from a user address space: the
// virtual-memory package provides the real implementation.
type AddressSpace interface {
	// SaveState saves the user registers and page-table state of the
	// outgoing thread.
	SaveState()
	// RestoreState reloads them for the incoming thread.
	RestoreState()
	// Release returns the space's physical frames to the frame manager;
	// called when the owning thread is destroyed.
	Release()
}

// Init installs the interrupt layer and scheduler and adopts the calling
// goroutine as the initial "main" thread, which is already running and needs
// no stack fence (it never gets one allocated).
func Init(i *interrupt.Interrupt, s *Scheduler) {
	intr = i
	st = i.Stats()
	sched = s
	tlbFlush = nil

	main := newThread("main", 0, false)
	main.status = StatusRunning
	currentThread = main

	i.SetYieldHandler(func() {
		currentThread.Yield()
	})
}

func Current() *Thread {
	return currentThread
}

func Sched() *Scheduler {
	return sched
}

// SetTLBFlush registers the TLB invalidation hook run on every context
// switch; nil when the machine has no TLB.
func SetTLBFlush(fn func()) {
	tlbFlush = fn
}
