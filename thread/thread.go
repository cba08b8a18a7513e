package thread

import (
	"runtime"

	"github.com/mit-pdos/go-nachos/interrupt"
	"github.com/mit-pdos/go-nachos/util"
)

type Status int

const (
	StatusJustCreated Status = iota
	StatusReady
	StatusRunning
	StatusBlocked
)

const (
	// PriorityMax is the highest thread priority; 0 the lowest.
	PriorityMax = 7

	// StackSize is the simulated kernel stack, in words. The real stack is
	// the goroutine's; this region exists for the fence-post overflow check
	// a port to raw stacks would rely on.
	StackSize      = 1024
	stackFencepost = 0x0dedbeef

	// Burst prediction: exponential smoothing coefficient and the initial
	// guess for a thread that has never run.
	burstAlpha       = 0.5
	initialBurstTime = 10

	// maxDonationDepth bounds transitive priority-donation walks so a
	// malformed wait-for chain cannot recurse unboundedly.
	maxDonationDepth = 8
)

type Thread struct {
	name     string
	priority int

	donatedPriority int
	isDonated       bool

	status     Status
	burstTime  int
	startTicks int64

	isJoinable    bool
	joinCalled    bool
	finishCalled  bool
	forkCalled    bool
	readyToFinish bool
	joinLock      *Lock
	joinWait      *Condition // Join() has been called
	finishWait    *Condition // Finish() has been called
	deleteWait    *Condition // joiner is done, safe to be destroyed

	desiredLock *Lock   // lock this thread is blocked acquiring, if any
	desiredJoin *Thread // thread this one is blocked joining, if any

	stack []int32       // fence-post word at stack[0]
	sw    chan struct{} // context-switch handoff

	// Space is the user address space, nil for pure kernel threads.
	Space AddressSpace

	files *FileTable
}

func newThread(name string, priority int, joinable bool) *Thread {
	t := &Thread{
		name:       name,
		status:     StatusJustCreated,
		isJoinable: joinable,
		burstTime:  initialBurstTime,
		sw:         make(chan struct{}),
		files:      newFileTable(),
	}
	t.setPriority(priority)
	t.joinLock = NewLock("join lock: " + name)
	t.joinWait = NewCondition("join called: " + name)
	t.finishWait = NewCondition("finish called: " + name)
	t.deleteWait = NewCondition("delete ok: " + name)
	return t
}

// New creates a thread that will run at the given priority once forked.
func New(name string, priority int, joinable bool) *Thread {
	return newThread(name, priority, joinable)
}

func (t *Thread) Name() string {
	return t.name
}

func (t *Thread) Status() Status {
	return t.status
}

func (t *Thread) Files() *FileTable {
	return t.files
}

func (t *Thread) setPriority(p int) int {
	if p < 0 {
		p = 0
	} else if p > PriorityMax {
		p = PriorityMax
	}
	old := t.priority
	t.priority = p
	return old
}

func (t *Thread) Priority() int {
	assertOff("Thread.Priority")
	return t.priority
}

// EffectivePriority is the thread's priority after any in-force donation.
func (t *Thread) EffectivePriority() int {
	assertOff("Thread.EffectivePriority")
	if !t.isDonated {
		return t.priority
	}
	return t.donatedPriority
}

func (t *Thread) setEffectivePriority(p int) {
	assertOff("Thread.setEffectivePriority")
	if p < 0 {
		panic("thread: negative donated priority")
	}
	util.DPrintf(2, "thread: %s gets donated priority %d", t.name, p)
	t.donatedPriority = p
	t.isDonated = true
	sched.UpdateReadyList(t)
}

// resetEffectivePriority drops any donation, reporting whether one was in
// force.
func (t *Thread) resetEffectivePriority() bool {
	assertOff("Thread.resetEffectivePriority")
	old := t.isDonated
	if old {
		t.isDonated = false
		sched.UpdateReadyList(t)
	}
	return old
}

func (t *Thread) BurstTime() int {
	return t.burstTime
}

// updateBurstTime folds the burst that just ended into the exponentially
// smoothed prediction; called on every voluntary yield and sleep.
func (t *Thread) updateBurstTime() {
	actual := st.UserTicks - t.startTicks
	t.burstTime = int(burstAlpha*float64(actual) + (1-burstAlpha)*float64(t.burstTime))
	util.DPrintf(3, "thread: %s actual burst %d, predicted next %d",
		t.name, actual, t.burstTime)
}

// Fork readies the thread to run fn(arg). The goroutine parks immediately
// and does not execute until the scheduler dispatches it; under a preemptive
// policy the caller yields right away so a higher-priority child runs first.
func (t *Thread) Fork(fn func(arg interface{}), arg interface{}) {
	util.DPrintf(2, "thread: forking %s", t.name)
	t.stackAllocate(fn, arg)

	oldLevel := intr.SetLevel(interrupt.Off)
	sched.ReadyToRun(t)
	t.forkCalled = true
	intr.SetLevel(oldLevel)

	if sched.IsPreemptive() {
		currentThread.Yield()
	}
}

func (t *Thread) stackAllocate(fn func(arg interface{}), arg interface{}) {
	t.stack = make([]int32, StackSize)
	t.stack[0] = stackFencepost
	go func() {
		<-t.sw
		t.begin()
		fn(arg)
		t.Finish()
	}()
}

// begin runs first on a freshly dispatched thread: reap the predecessor if
// it was finishing, then drop into the thread body with interrupts on.
func (t *Thread) begin() {
	if t != currentThread {
		panic("thread: begin on a thread that is not current")
	}
	util.DPrintf(2, "thread: beginning %s", t.name)
	sched.CheckToBeDestroyed()
	intr.Enable()
}

func (t *Thread) checkOverflow() {
	if t.stack != nil && t.stack[0] != stackFencepost {
		panic("thread: stack overflow on " + t.name)
	}
}

// Yield gives up the CPU if the scheduler prefers another ready thread; the
// caller goes back on the ready list and resumes later.
func (t *Thread) Yield() {
	oldLevel := intr.SetLevel(interrupt.Off)
	if t != currentThread {
		panic("thread: Yield on a thread that is not current")
	}
	util.DPrintf(3, "thread: yielding %s", t.name)
	next := sched.FindNextToRun()
	if next != nil && next != t {
		t.updateBurstTime()
		sched.ReadyToRun(t)
		sched.Run(next, false)
	}
	intr.SetLevel(oldLevel)
}

// Sleep blocks the current thread. Interrupts must already be masked; the
// wakeup comes from elsewhere (V, Signal, Release or the timer). With
// finishing set the thread never resumes and is destroyed from the next
// thread's context.
func (t *Thread) Sleep(finishing bool) {
	if t != currentThread {
		panic("thread: Sleep on a thread that is not current")
	}
	assertOff("Thread.Sleep")
	util.DPrintf(3, "thread: sleeping %s", t.name)

	t.updateBurstTime()
	t.status = StatusBlocked
	var next *Thread
	for {
		next = sched.FindNextToRun()
		if next != nil {
			break
		}
		intr.Idle()
	}
	sched.Run(next, finishing)
}

// Finish terminates the current thread. A joinable thread first completes
// the Join handshake so it is only destroyed after its joiner has left
// Join(); destruction itself happens on the next thread's stack via
// CheckToBeDestroyed.
func (t *Thread) Finish() {
	intr.SetLevel(interrupt.Off)
	if t != currentThread {
		panic("thread: Finish on a thread that is not current")
	}
	util.DPrintf(2, "thread: finishing %s", t.name)

	if t.isJoinable {
		t.joinLock.Acquire()
		t.finishCalled = true
		for !t.joinCalled {
			t.joinWait.Wait(t.joinLock)
			intr.SetLevel(interrupt.Off)
		}
		t.finishWait.Signal(t.joinLock)
		if sched.IsPreemptive() {
			// The joiner donated to us; shed the donation and drop to the
			// bottom priority so we are destroyed promptly without starving
			// anyone.
			t.setPriority(0)
			t.resetEffectivePriority()
		}
		for !t.readyToFinish {
			t.deleteWait.Wait(t.joinLock)
			intr.SetLevel(interrupt.Off)
		}
		t.joinLock.Release()
		intr.SetLevel(interrupt.Off)
		util.DPrintf(2, "thread: %s wholly finished after Join", t.name)
	}

	t.Sleep(true)
	panic("thread: returned from final sleep")
}

// Join blocks until t has called Finish. Only legal once, on a joinable
// thread that has been forked, and never on oneself. Under a preemptive
// policy the joiner donates its effective priority to t for the wait.
func (t *Thread) Join() {
	if t == currentThread {
		panic("thread: Join on self")
	}
	if !t.isJoinable {
		panic("thread: Join on non-joinable thread " + t.name)
	}
	if t.joinCalled {
		panic("thread: Join called twice on " + t.name)
	}
	if !t.forkCalled {
		panic("thread: Join before Fork on " + t.name)
	}

	oldLevel := intr.SetLevel(interrupt.Off)
	util.DPrintf(2, "thread: joining %s", t.name)

	t.joinLock.Acquire()
	t.joinCalled = true
	for !t.finishCalled {
		if sched.IsPreemptive() {
			level := intr.SetLevel(interrupt.Off)
			currentThread.desiredJoin = t
			sched.DonatePriority(currentThread, t)
			intr.SetLevel(level)
		}
		t.finishWait.Wait(t.joinLock)
	}
	currentThread.desiredJoin = nil
	t.joinWait.Signal(t.joinLock)
	t.readyToFinish = true
	t.deleteWait.Signal(t.joinLock)
	t.joinLock.Release()

	intr.SetLevel(oldLevel)
}

// destroy reclaims a finished thread; runs on another thread's stack.
func (t *Thread) destroy() {
	if t == currentThread {
		panic("thread: destroying the current thread")
	}
	util.DPrintf(2, "thread: destroying %s", t.name)
	t.stack = nil
	t.files.RemoveAll()
	if t.Space != nil {
		t.Space.Release()
		t.Space = nil
	}
}

func assertOff(who string) {
	if intr.GetLevel() != interrupt.Off {
		panic("thread: " + who + " requires interrupts masked")
	}
}

// switchTo hands the CPU to next. For a finishing thread the goroutine
// terminates here; otherwise it parks until rescheduled. Dispatching back to
// the thread that was just idling is a no-op: the context is already live.
func (t *Thread) switchTo(next *Thread, finishing bool) {
	if finishing {
		next.sw <- struct{}{}
		runtime.Goexit()
	}
	if next == t {
		return
	}
	next.sw <- struct{}{}
	<-t.sw
}
