package thread

import (
	"fmt"
	"io"

	"github.com/mit-pdos/go-nachos/interrupt"
	"github.com/mit-pdos/go-nachos/util"
)

// SchedulerType selects the ready-list ordering policy.
type SchedulerType int

const (
	FCFS SchedulerType = iota
	RR
	Priority
	SJF
)

func (t SchedulerType) String() string {
	switch t {
	case FCFS:
		return "FCFS"
	case RR:
		return "RR"
	case Priority:
		return "Priority"
	case SJF:
		return "SJF"
	}
	return "unknown"
}

// pendingWakeup pairs a sleeping thread with the tick it should wake at.
type pendingWakeup struct {
	thread *Thread
	when   int64
}

// Scheduler picks the next thread to run and tracks sleepers. Every public
// entry requires interrupts masked: the scheduler is the mechanism locks are
// built on, so it can never block on one itself.
type Scheduler struct {
	schedulerType SchedulerType
	isPreemptive  bool

	readyList     []*Thread
	sleepList     []*pendingWakeup
	toBeDestroyed *Thread
}

// NewScheduler rejects the one meaningless configuration, preemptive FCFS.
func NewScheduler(schedulerType SchedulerType, isPreemptive bool) *Scheduler {
	if isPreemptive && schedulerType == FCFS {
		panic("scheduler: FCFS cannot be preemptive")
	}
	return &Scheduler{
		schedulerType: schedulerType,
		isPreemptive:  isPreemptive,
	}
}

func (s *Scheduler) Type() SchedulerType {
	return s.schedulerType
}

func (s *Scheduler) IsPreemptive() bool {
	return s.isPreemptive
}

// CompareThread orders a before b (negative result) under the active policy.
// Ties preserve arrival order.
func (s *Scheduler) CompareThread(a *Thread, b *Thread) int {
	switch s.schedulerType {
	case Priority:
		if s.isPreemptive {
			return -compareInt(a.EffectivePriority(), b.EffectivePriority())
		}
		return -compareInt(a.priority, b.priority)
	case RR, FCFS:
		return 0
	case SJF:
		return compareInt(a.burstTime, b.burstTime)
	}
	panic("scheduler: undefined scheduler type")
}

func compareInt(a, b int) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

// ReadyToRun marks thread runnable and inserts it into the ready list at its
// policy position.
func (s *Scheduler) ReadyToRun(thread *Thread) {
	assertOff("Scheduler.ReadyToRun")
	util.DPrintf(3, "scheduler: readying %s", thread.name)

	thread.status = StatusReady
	at := len(s.readyList)
	for i, t := range s.readyList {
		if s.CompareThread(thread, t) < 0 {
			at = i
			break
		}
	}
	s.readyList = append(s.readyList, nil)
	copy(s.readyList[at+1:], s.readyList[at:])
	s.readyList[at] = thread
}

// FindNextToRun returns the thread to dispatch, removing it from the ready
// list, or nil if nothing is runnable. Under a preemptive policy a current
// thread that is still runnable keeps the CPU unless the head of the ready
// list is at least as preferable.
func (s *Scheduler) FindNextToRun() *Thread {
	assertOff("Scheduler.FindNextToRun")

	if !s.isPreemptive {
		return s.removeFront()
	}
	if currentThread.status == StatusBlocked {
		return s.removeFront()
	}
	if len(s.readyList) == 0 {
		return currentThread
	}
	if s.CompareThread(s.readyList[0], currentThread) <= 0 {
		return s.removeFront()
	}
	return currentThread
}

func (s *Scheduler) removeFront() *Thread {
	if len(s.readyList) == 0 {
		return nil
	}
	t := s.readyList[0]
	s.readyList = s.readyList[1:]
	return t
}

// Run dispatches the CPU to nextThread, saving the outgoing thread's user
// state and flushing the TLB. With finishing set the outgoing thread is
// marked for destruction, which happens after the switch on the incoming
// thread's stack (we are still running on the old one here).
func (s *Scheduler) Run(nextThread *Thread, finishing bool) {
	oldThread := currentThread
	assertOff("Scheduler.Run")

	if finishing {
		if s.toBeDestroyed != nil {
			panic("scheduler: a finished thread is already pending destruction")
		}
		s.toBeDestroyed = oldThread
	}

	if oldThread.Space != nil {
		oldThread.Space.SaveState()
	}
	if tlbFlush != nil {
		tlbFlush()
	}
	oldThread.checkOverflow()

	currentThread = nextThread
	nextThread.status = StatusRunning
	nextThread.startTicks = st.UserTicks
	util.DPrintf(2, "scheduler: switching from %s to %s", oldThread.name, nextThread.name)

	oldThread.switchTo(nextThread, finishing)

	// Back on oldThread's goroutine, interrupts still off.
	assertOff("Scheduler.Run (resume)")
	util.DPrintf(3, "scheduler: now back in %s", oldThread.name)
	s.CheckToBeDestroyed()
	if oldThread.Space != nil {
		oldThread.Space.RestoreState()
	}
}

// CheckToBeDestroyed reaps a thread that gave up the CPU while finishing; it
// could not be torn down earlier because it was still running on its own
// stack.
func (s *Scheduler) CheckToBeDestroyed() {
	if s.toBeDestroyed != nil {
		t := s.toBeDestroyed
		s.toBeDestroyed = nil
		t.destroy()
	}
}

// SetSleep suspends the current thread for sleepTicks of simulated time.
// The wakeup is driven by the timer interrupt via WakeUpSleepingThread.
func (s *Scheduler) SetSleep(sleepTicks int64) {
	if sleepTicks <= 0 {
		panic(fmt.Sprintf("scheduler: sleep time %d must be positive", sleepTicks))
	}
	cur := currentThread
	oldLevel := intr.SetLevel(interrupt.Off)

	when := st.TotalTicks + sleepTicks
	util.DPrintf(3, "scheduler: %s sleeping until tick %d", cur.name, when)

	at := len(s.sleepList)
	for i, p := range s.sleepList {
		if when < p.when {
			at = i
			break
		}
	}
	s.sleepList = append(s.sleepList, nil)
	copy(s.sleepList[at+1:], s.sleepList[at:])
	s.sleepList[at] = &pendingWakeup{thread: cur, when: when}

	cur.Sleep(false)

	intr.SetLevel(oldLevel)
}

// WakeUpSleepingThread readies every sleeper whose wake tick has passed;
// called from the timer interrupt handler.
func (s *Scheduler) WakeUpSleepingThread() {
	for len(s.sleepList) > 0 && s.sleepList[0].when <= st.TotalTicks {
		p := s.sleepList[0]
		s.sleepList = s.sleepList[1:]
		util.DPrintf(3, "scheduler: waking %s at tick %d (due %d)",
			p.thread.name, st.TotalTicks, p.when)
		s.ReadyToRun(p.thread)
	}
}

// DonatePriority raises donee's effective priority to donor's if the policy
// prefers donor, re-sorting the ready list and propagating along donee's own
// desired lock and join back-pointers. The walk is depth-bounded so a
// malformed wait-for cycle terminates.
func (s *Scheduler) DonatePriority(donor *Thread, donee *Thread) {
	s.donatePriority(donor, donee, 0)
}

func (s *Scheduler) donatePriority(donor *Thread, donee *Thread, depth int) {
	assertOff("Scheduler.DonatePriority")
	if donee == nil || donor == donee {
		return
	}
	if depth >= maxDonationDepth {
		util.DPrintf(1, "scheduler: donation chain from %s cut at depth %d",
			donor.name, depth)
		return
	}
	util.DPrintf(2, "scheduler: %s (%d) donates to %s (%d)",
		donor.name, donor.EffectivePriority(), donee.name, donee.EffectivePriority())

	if s.CompareThread(donor, donee) < 0 {
		donee.setEffectivePriority(donor.EffectivePriority())
		if donee.desiredLock != nil {
			s.donatePriority(donee, donee.desiredLock.holder, depth+1)
		}
		if donee.desiredJoin != nil {
			s.donatePriority(donee, donee.desiredJoin, depth+1)
		}
	}
}

// UpdateReadyList re-sorts thread after its effective priority changed;
// reports whether it was on the list at all.
func (s *Scheduler) UpdateReadyList(thread *Thread) bool {
	assertOff("Scheduler.UpdateReadyList")

	found := false
	for i, t := range s.readyList {
		if t == thread {
			s.readyList = append(s.readyList[:i], s.readyList[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return false
	}
	s.ReadyToRun(thread)
	return true
}

// Quiescent reports whether no thread is ready or sleeping; used by the
// timer to decide when the machine can wind down.
func (s *Scheduler) Quiescent() bool {
	return len(s.readyList) == 0 && len(s.sleepList) == 0
}

// Print dumps the ready list, for debugging.
func (s *Scheduler) Print(w io.Writer) {
	fmt.Fprintf(w, "Ready list contents:\n")
	for _, t := range s.readyList {
		fmt.Fprintf(w, "  %s (burst %d)\n", t.name, t.burstTime)
	}
}
