package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-nachos/interrupt"
	"github.com/mit-pdos/go-nachos/stats"
)

// setup boots a fresh thread system on the test goroutine, which becomes the
// "main" thread, with the kernel's timer wired to the sleep queue.
func setup(typ SchedulerType, preemptive bool) *interrupt.Interrupt {
	s := stats.New()
	i := interrupt.New(s)
	i.SetHaltHandler(func() {
		panic("machine halted")
	})
	Init(i, NewScheduler(typ, preemptive))
	interrupt.NewTimer(i, func() bool {
		sched.WakeUpSleepingThread()
		if sched.IsPreemptive() {
			i.YieldOnReturn()
		}
		return true
	})
	i.Enable()
	return i
}

func TestPreemptiveFCFSRejected(t *testing.T) {
	require.Panics(t, func() {
		NewScheduler(FCFS, true)
	})
}

func TestSchedulerHonorsPreemptiveFlag(t *testing.T) {
	s := NewScheduler(Priority, true)
	require.True(t, s.IsPreemptive())
	s = NewScheduler(Priority, false)
	require.False(t, s.IsPreemptive())
}

func TestSimpleForkAndYield(t *testing.T) {
	setup(FCFS, false)

	var order []int
	child := New("forked thread", 0, false)
	child.Fork(func(arg interface{}) {
		for n := 0; n < 5; n++ {
			order = append(order, arg.(int))
			Current().Yield()
		}
	}, 1)
	for n := 0; n < 5; n++ {
		order = append(order, 0)
		Current().Yield()
	}
	// let the child drain
	for n := 0; n < 5; n++ {
		Current().Yield()
	}

	require.Len(t, order, 10)
	assert.Equal(t, 0, order[0])
	assert.Equal(t, 1, order[1])
}

func TestSemaphorePingPong(t *testing.T) {
	setup(FCFS, false)

	ping := NewSemaphore("ping", 0)
	pong := NewSemaphore("pong", 0)
	rounds := 0

	helper := New("ping helper", 0, false)
	helper.Fork(func(arg interface{}) {
		for n := 0; n < 10; n++ {
			ping.P()
			rounds++
			pong.V()
		}
	}, nil)

	for n := 0; n < 10; n++ {
		ping.V()
		pong.P()
	}
	assert.Equal(t, 10, rounds)
}

func TestReadyListPriorityOrdering(t *testing.T) {
	i := setup(Priority, true)

	oldLevel := i.SetLevel(interrupt.Off)
	a := New("a", 3, false)
	b := New("b", 5, false)
	c := New("c", 5, false)
	d := New("d", 1, false)
	sched.ReadyToRun(a)
	sched.ReadyToRun(b)
	sched.ReadyToRun(c)
	sched.ReadyToRun(d)

	var names []string
	for _, th := range sched.readyList {
		names = append(names, th.Name())
	}
	// highest priority first, arrival order among equals
	assert.Equal(t, []string{"b", "c", "a", "d"}, names)

	// ready list ordering invariant under the active comparator
	for k := 0; k+1 < len(sched.readyList); k++ {
		assert.LessOrEqual(t,
			sched.CompareThread(sched.readyList[k], sched.readyList[k+1]), 0)
	}

	sched.readyList = nil
	i.SetLevel(oldLevel)
}

func TestReadyListSJFOrdering(t *testing.T) {
	i := setup(SJF, false)

	oldLevel := i.SetLevel(interrupt.Off)
	a := New("a", 0, false)
	a.burstTime = 30
	b := New("b", 0, false)
	b.burstTime = 5
	c := New("c", 0, false)
	c.burstTime = 30
	sched.ReadyToRun(a)
	sched.ReadyToRun(b)
	sched.ReadyToRun(c)

	var names []string
	for _, th := range sched.readyList {
		names = append(names, th.Name())
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)

	sched.readyList = nil
	i.SetLevel(oldLevel)
}

func TestFindNextToRunPreemptive(t *testing.T) {
	i := setup(Priority, true)

	oldLevel := i.SetLevel(interrupt.Off)

	// a lower-priority arrival does not displace the running thread
	currentThread.setPriority(7)
	low := New("low", 1, false)
	sched.ReadyToRun(low)
	assert.Equal(t, currentThread, sched.FindNextToRun())

	// an equal-or-better arrival does
	high := New("high", 7, false)
	sched.ReadyToRun(high)
	assert.Equal(t, high, sched.FindNextToRun())

	sched.readyList = nil
	currentThread.setPriority(0)
	i.SetLevel(oldLevel)
}

func TestBurstTimePrediction(t *testing.T) {
	setup(SJF, false)

	th := New("predicted", 0, false)
	require.Equal(t, initialBurstTime, th.BurstTime())

	// two bursts of 20 and 40 user ticks with alpha 0.5:
	// 0.5*20 + 0.5*10 = 15, then 0.5*40 + 0.5*15 = 27
	th.startTicks = st.UserTicks
	st.UserTicks += 20
	th.updateBurstTime()
	assert.Equal(t, 15, th.BurstTime())

	th.startTicks = st.UserTicks
	st.UserTicks += 40
	th.updateBurstTime()
	assert.Equal(t, 27, th.BurstTime())
}

func TestPriorityDonation(t *testing.T) {
	i := setup(Priority, true)

	lock := NewLock("resource")
	gate := NewSemaphore("gate", 0)
	var events []string
	var lowEffective []int

	recordEffective := func() {
		oldLevel := i.SetLevel(interrupt.Off)
		lowEffective = append(lowEffective, Current().EffectivePriority())
		i.SetLevel(oldLevel)
	}

	low := New("low", 1, false)
	low.Fork(func(arg interface{}) {
		lock.Acquire()
		events = append(events, "low acquired")
		gate.P()
		recordEffective() // high is waiting on the lock by now
		lock.Release()
		recordEffective() // donation must be gone
		events = append(events, "low released")
	}, nil)

	high := New("high", 6, false)
	high.Fork(func(arg interface{}) {
		lock.Acquire()
		events = append(events, "high acquired")
		lock.Release()
	}, nil)

	// low holds the lock and sits at the gate; high is blocked acquiring.
	oldLevel := i.SetLevel(interrupt.Off)
	assert.Equal(t, 6, low.EffectivePriority())
	assert.Equal(t, 1, low.Priority())
	i.SetLevel(oldLevel)

	gate.V()
	Current().Yield()
	for len(events) < 3 {
		Current().Yield()
	}

	assert.Equal(t, []string{"low acquired", "high acquired", "low released"}, events)
	assert.Equal(t, []int{6, 1}, lowEffective)
}

func TestLockReleaseWakesAllWaiters(t *testing.T) {
	i := setup(FCFS, false)

	lock := NewLock("shared")
	lock.Acquire()

	ran := 0
	for n := 0; n < 3; n++ {
		w := New("waiter", 0, false)
		w.Fork(func(arg interface{}) {
			lock.Acquire()
			ran++
			lock.Release()
		}, nil)
	}
	// park all three on the lock
	Current().Yield()
	require.Equal(t, 0, ran)
	require.Len(t, lock.waitQueue, 3)

	lock.Release()
	oldLevel := i.SetLevel(interrupt.Off)
	require.Empty(t, lock.waitQueue)
	i.SetLevel(oldLevel)

	for ran < 3 {
		Current().Yield()
	}
	assert.Equal(t, 3, ran)
}

func TestLockContractViolations(t *testing.T) {
	setup(FCFS, false)

	lock := NewLock("contract")
	lock.Acquire()
	require.Panics(t, func() {
		lock.Acquire()
	})
	lock.Release()
	require.Panics(t, func() {
		lock.Release()
	})
}

func TestConditionRequiresLock(t *testing.T) {
	setup(FCFS, false)

	lock := NewLock("monitor")
	cond := NewCondition("cv")
	require.Panics(t, func() {
		cond.Wait(lock)
	})
	require.Panics(t, func() {
		cond.Signal(lock)
	})
}

func TestConditionSignalWakesInFIFOOrder(t *testing.T) {
	setup(FCFS, false)

	lock := NewLock("monitor")
	cond := NewCondition("cv")
	var woken []int
	ready := 0

	for n := 0; n < 3; n++ {
		w := New("cv waiter", 0, false)
		id := n
		w.Fork(func(arg interface{}) {
			lock.Acquire()
			ready++
			cond.Wait(lock)
			woken = append(woken, id)
			lock.Release()
		}, nil)
	}
	for ready < 3 {
		Current().Yield()
	}

	lock.Acquire()
	cond.Signal(lock)
	cond.Signal(lock)
	cond.Signal(lock)
	lock.Release()
	for len(woken) < 3 {
		Current().Yield()
	}
	assert.Equal(t, []int{0, 1, 2}, woken)
}

func TestMailboxRendezvous(t *testing.T) {
	setup(FCFS, false)

	mb := NewMailbox("mb")
	var got []int
	sent := false

	sender := New("sender", 0, false)
	sender.Fork(func(arg interface{}) {
		mb.Send(42)
		sent = true
	}, nil)

	// the sender must block until a receive is posted
	Current().Yield()
	require.False(t, sent)

	receiver := New("receiver", 0, false)
	receiver.Fork(func(arg interface{}) {
		got = append(got, mb.Receive())
	}, nil)

	for !sent || len(got) == 0 {
		Current().Yield()
	}
	assert.Equal(t, []int{42}, got)
}

func TestMailboxPairsSendsWithReceives(t *testing.T) {
	setup(FCFS, false)

	mb := NewMailbox("mb")
	var got []int

	s := New("sender", 0, false)
	s.Fork(func(arg interface{}) {
		for n := 0; n < 3; n++ {
			mb.Send(100 + n)
		}
	}, nil)
	r := New("receiver", 0, false)
	r.Fork(func(arg interface{}) {
		for n := 0; n < 3; n++ {
			got = append(got, mb.Receive())
		}
	}, nil)

	for len(got) < 3 {
		Current().Yield()
	}
	assert.Equal(t, []int{100, 101, 102}, got)
}

func TestJoinHandshake(t *testing.T) {
	setup(FCFS, false)

	done := false
	j := New("joinable", 0, true)
	j.Fork(func(arg interface{}) {
		done = true
	}, nil)

	j.Join()
	assert.True(t, done)

	// let the joinee run its final sleep and be destroyed
	Current().Yield()
}

func TestSleepOrdering(t *testing.T) {
	setup(FCFS, false)

	var order []string
	var wakeTicks []int64
	var start int64

	a := New("sleep 50", 0, false)
	a.Fork(func(arg interface{}) {
		sched.SetSleep(50)
		order = append(order, "a")
		wakeTicks = append(wakeTicks, st.TotalTicks)
	}, nil)
	b := New("sleep 10", 0, false)
	b.Fork(func(arg interface{}) {
		sched.SetSleep(10)
		order = append(order, "b")
		wakeTicks = append(wakeTicks, st.TotalTicks)
	}, nil)

	oldLevel := intr.SetLevel(interrupt.Off)
	start = st.TotalTicks
	intr.SetLevel(oldLevel)

	for len(order) < 2 {
		sched.SetSleep(30)
	}

	require.Equal(t, []string{"b", "a"}, order)
	assert.GreaterOrEqual(t, wakeTicks[0]-start, int64(10))
	assert.GreaterOrEqual(t, wakeTicks[1]-start, int64(50))

	// sleep queue must be drained in wake-tick order
	oldLevel = intr.SetLevel(interrupt.Off)
	for k := 0; k+1 < len(sched.sleepList); k++ {
		assert.LessOrEqual(t, sched.sleepList[k].when, sched.sleepList[k+1].when)
	}
	intr.SetLevel(oldLevel)
}

func TestSetSleepRejectsNonPositive(t *testing.T) {
	setup(FCFS, false)

	require.Panics(t, func() {
		sched.SetSleep(0)
	})
	require.Panics(t, func() {
		sched.SetSleep(-5)
	})
}

func TestOnlyOneThreadRunning(t *testing.T) {
	i := setup(FCFS, false)

	mainThread := Current()
	threads := make([]*Thread, 3)
	running := func() int {
		n := 0
		if mainThread.Status() == StatusRunning {
			n++
		}
		for _, th := range threads {
			if th != nil && th.Status() == StatusRunning {
				n++
			}
		}
		return n
	}

	checks := 0
	for n := range threads {
		th := New("checker", 0, false)
		threads[n] = th
		th.Fork(func(arg interface{}) {
			oldLevel := i.SetLevel(interrupt.Off)
			if running() == 1 && Current() == th {
				checks++
			}
			i.SetLevel(oldLevel)
		}, nil)
	}
	for checks < 3 {
		Current().Yield()
	}
	assert.Equal(t, 3, checks)
}

func TestFileTableLowestFreeIndex(t *testing.T) {
	setup(FCFS, false)

	ft := Current().Files()
	type stubFile struct{ UserFile }
	fds := make([]int, 0, MaxNumUserOpenFiles)
	for n := 0; n < MaxNumUserOpenFiles; n++ {
		fds = append(fds, ft.Add(stubFile{}))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, fds)

	// table full
	assert.Equal(t, -1, ft.Add(stubFile{}))

	// a freed descriptor is the next one handed out
	require.True(t, ft.Remove(2))
	assert.Nil(t, ft.Get(2))
	assert.Equal(t, 2, ft.Add(stubFile{}))

	assert.False(t, ft.Remove(-1))
	assert.False(t, ft.Remove(MaxNumUserOpenFiles))
	assert.Nil(t, ft.Get(99))

	ft.RemoveAll()
	assert.Equal(t, 0, ft.Add(stubFile{}))
	ft.RemoveAll()
}

func TestEffectivePriorityNeverBelowBase(t *testing.T) {
	i := setup(Priority, true)

	oldLevel := i.SetLevel(interrupt.Off)
	th := New("donee", 3, false)
	assert.Equal(t, th.Priority(), th.EffectivePriority())

	donor := New("donor", 6, false)
	sched.DonatePriority(donor, th)
	assert.Equal(t, 6, th.EffectivePriority())
	assert.GreaterOrEqual(t, th.EffectivePriority(), th.Priority())

	// a lower-priority donor leaves the donation alone
	weak := New("weak", 2, false)
	sched.DonatePriority(weak, th)
	assert.Equal(t, 6, th.EffectivePriority())

	th.resetEffectivePriority()
	assert.Equal(t, 3, th.EffectivePriority())
	i.SetLevel(oldLevel)
}

func TestDonationPropagatesThroughLockChain(t *testing.T) {
	i := setup(Priority, true)

	oldLevel := i.SetLevel(interrupt.Off)
	// c holds L2; b holds L1 and wants L2; a high-priority donor hits b.
	a := New("a", 7, false)
	b := New("b", 2, false)
	c := New("c", 1, false)
	l2 := NewLock("L2")
	l2.holder = c
	b.desiredLock = l2

	sched.DonatePriority(a, b)
	assert.Equal(t, 7, b.EffectivePriority())
	assert.Equal(t, 7, c.EffectivePriority())

	l2.holder = nil
	i.SetLevel(oldLevel)
}
