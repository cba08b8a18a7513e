package thread

import (
	"github.com/mit-pdos/go-nachos/interrupt"
	"github.com/mit-pdos/go-nachos/util"
)

// Synchronization primitives, built on interrupt masking: while interrupts
// are off no context switch can occur, so the current thread holds the CPU
// until it re-enables them. Routines that may be entered with interrupts
// already off restore the caller's level rather than enabling outright.

// Semaphore is a classical counting semaphore with a FIFO waiter queue.
type Semaphore struct {
	name  string
	value int
	queue []*Thread
}

func NewSemaphore(name string, initialValue int) *Semaphore {
	if initialValue < 0 {
		panic("semaphore: negative initial value")
	}
	return &Semaphore{name: name, value: initialValue}
}

func (s *Semaphore) Name() string {
	return s.name
}

// P waits until the value is positive, then decrements it. The wait re-checks
// on every wake: a V readies the head waiter but another thread may consume
// the value first (Mesa-style).
func (s *Semaphore) P() {
	oldLevel := intr.SetLevel(interrupt.Off)

	for s.value == 0 {
		s.queue = append(s.queue, currentThread)
		currentThread.Sleep(false)
	}
	s.value--

	intr.SetLevel(oldLevel)
}

// V increments the value, readying the head waiter if there is one.
func (s *Semaphore) V() {
	oldLevel := intr.SetLevel(interrupt.Off)

	if len(s.queue) > 0 {
		sched.ReadyToRun(s.queue[0])
		s.queue = s.queue[1:]
	}
	s.value++

	intr.SetLevel(oldLevel)
}

// Lock is a mutex owned by at most one thread, with priority donation: a
// waiter donates its effective priority to the holder so the holder cannot
// be starved by middle-priority threads.
type Lock struct {
	name      string
	holder    *Thread
	waitQueue []*Thread
}

func NewLock(name string) *Lock {
	return &Lock{name: name}
}

func (l *Lock) Name() string {
	return l.name
}

func (l *Lock) IsHeldByCurrentThread() bool {
	return l.holder == currentThread
}

// Acquire blocks until the lock is free, donating priority to the holder
// while waiting. Re-acquisition by the holder is a contract violation.
func (l *Lock) Acquire() {
	if l.IsHeldByCurrentThread() {
		panic("lock: re-acquire of " + l.name + " by holder")
	}
	cur := currentThread
	oldLevel := intr.SetLevel(interrupt.Off)

	for l.holder != nil {
		cur.desiredLock = l
		sched.DonatePriority(cur, l.holder)
		l.waitQueue = append(l.waitQueue, cur)
		cur.Sleep(false)
	}
	cur.desiredLock = nil
	l.holder = cur
	util.DPrintf(3, "lock: %s held by %s", l.name, cur.name)

	intr.SetLevel(oldLevel)
}

// Release frees the lock and readies every waiter; the scheduler then picks
// the best of them under the active policy. (The classic contract wakes one
// waiter; draining the queue is the behaviour this kernel has always shipped
// with, and waiters re-check under Acquire's loop either way.) Any donation
// the holder accumulated is dropped, and under a preemptive policy a
// previously-donated holder yields at once so the promoted waiter runs.
func (l *Lock) Release() {
	if !l.IsHeldByCurrentThread() {
		panic("lock: release of " + l.name + " by non-holder")
	}
	oldLevel := intr.SetLevel(interrupt.Off)

	wasDonated := l.holder.resetEffectivePriority()
	for len(l.waitQueue) > 0 {
		sched.ReadyToRun(l.waitQueue[0])
		l.waitQueue = l.waitQueue[1:]
	}
	l.holder = nil
	util.DPrintf(3, "lock: %s released", l.name)

	intr.SetLevel(oldLevel)

	if sched.IsPreemptive() && wasDonated {
		currentThread.Yield()
	}
}

// Condition is a Mesa-semantics condition variable: a signalled thread
// re-acquires the monitor lock and must re-check its predicate, so every
// Wait belongs inside a for loop.
type Condition struct {
	name      string
	waitQueue []*Thread
}

func NewCondition(name string) *Condition {
	return &Condition{name: name}
}

func (c *Condition) Name() string {
	return c.name
}

// Wait atomically releases conditionLock and sleeps; on wake it re-acquires
// the lock before returning.
func (c *Condition) Wait(conditionLock *Lock) {
	if !conditionLock.IsHeldByCurrentThread() {
		panic("condition: Wait on " + c.name + " without holding the lock")
	}
	cur := currentThread
	oldLevel := intr.SetLevel(interrupt.Off)

	c.waitQueue = append(c.waitQueue, cur)
	conditionLock.Release()
	cur.Sleep(false)

	intr.SetLevel(oldLevel)

	conditionLock.Acquire()
}

// Signal readies the head waiter, if any. Mesa-style: the signaller keeps
// the CPU.
func (c *Condition) Signal(conditionLock *Lock) {
	if !conditionLock.IsHeldByCurrentThread() {
		panic("condition: Signal on " + c.name + " without holding the lock")
	}
	oldLevel := intr.SetLevel(interrupt.Off)

	if len(c.waitQueue) > 0 {
		sched.ReadyToRun(c.waitQueue[0])
		c.waitQueue = c.waitQueue[1:]
	}

	intr.SetLevel(oldLevel)
}

// Broadcast signals until no waiters remain.
func (c *Condition) Broadcast(conditionLock *Lock) {
	for len(c.waitQueue) > 0 {
		c.Signal(conditionLock)
	}
}

// Mailbox is a one-slot rendezvous: each successful Send pairs with exactly
// one Receive. Send blocks until a receiver has arrived and the slot is
// writable; Receive blocks until the slot has been written.
type Mailbox struct {
	name           string
	buffer         int
	bufferWritable bool
	numRecvCalled  int

	mbLock   *Lock
	sendWait *Condition
	recvWait *Condition
}

func NewMailbox(name string) *Mailbox {
	return &Mailbox{
		name:           name,
		bufferWritable: true,
		mbLock:         NewLock("mailbox lock: " + name),
		sendWait:       NewCondition("mailbox send: " + name),
		recvWait:       NewCondition("mailbox recv: " + name),
	}
}

func (m *Mailbox) Name() string {
	return m.name
}

func (m *Mailbox) Send(message int) {
	m.mbLock.Acquire()

	for !m.bufferWritable || m.numRecvCalled == 0 {
		m.sendWait.Wait(m.mbLock)
	}

	m.buffer = message
	m.bufferWritable = false

	m.recvWait.Signal(m.mbLock)
	m.mbLock.Release()
}

func (m *Mailbox) Receive() int {
	m.mbLock.Acquire()

	m.numRecvCalled++
	m.sendWait.Signal(m.mbLock)

	for m.bufferWritable {
		m.recvWait.Wait(m.mbLock)
	}

	message := m.buffer
	m.numRecvCalled--
	m.bufferWritable = true

	m.mbLock.Release()
	return message
}
