// Package interrupt provides the simulated machine's interrupt mask and
// clock. On a uniprocessor, masking interrupts is the kernel's mutual
// exclusion primitive: while the level is Off no context switch can occur,
// so the current thread holds the CPU until it re-enables.
//
// Time only passes when interrupts are enabled (OneTick on re-enable and on
// each simulated user instruction) or when the machine is idle and the clock
// jumps forward to the next pending interrupt.
package interrupt

import (
	"fmt"
	"os"

	"github.com/mit-pdos/go-nachos/stats"
	"github.com/mit-pdos/go-nachos/util"
)

type Level int

const (
	Off Level = iota
	On
)

func (l Level) String() string {
	if l == Off {
		return "off"
	}
	return "on"
}

type Type int

const (
	TimerInt Type = iota
	DiskInt
	ConsoleWriteInt
)

// pending is an interrupt scheduled to fire at an absolute tick.
type pending struct {
	callback func()
	when     int64
	typ      Type
}

type Interrupt struct {
	level     Level
	pending   []*pending // sorted by when, stable
	st        *stats.Stats
	inHandler bool

	yieldOnReturn bool
	yieldFn       func()
	haltFn        func()
}

func New(st *stats.Stats) *Interrupt {
	i := &Interrupt{
		level: Off,
		st:    st,
	}
	i.haltFn = func() {
		st.WriteTable(os.Stderr)
		os.Exit(0)
	}
	return i
}

func (i *Interrupt) Stats() *stats.Stats {
	return i.st
}

// SetYieldHandler wires YieldOnReturn to the thread layer's Yield; set once
// during kernel initialization.
func (i *Interrupt) SetYieldHandler(fn func()) {
	i.yieldFn = fn
}

// SetHaltHandler overrides what Halt does (tests use this; the default
// prints statistics and exits the process).
func (i *Interrupt) SetHaltHandler(fn func()) {
	i.haltFn = fn
}

func (i *Interrupt) GetLevel() Level {
	return i.level
}

// SetLevel changes the interrupt mask and returns the previous level.
// Turning interrupts from off to on advances the clock by one system tick,
// which is when pending interrupts get a chance to fire.
func (i *Interrupt) SetLevel(now Level) Level {
	old := i.level
	if now == On && i.inHandler {
		panic("interrupt: cannot enable interrupts inside an interrupt handler")
	}
	i.level = now
	if now == On && old == Off {
		i.OneTick(stats.SystemTick)
	}
	return old
}

func (i *Interrupt) Enable() {
	i.SetLevel(On)
}

// OneTick advances simulated time and fires any interrupts that have come
// due. Called on every interrupt re-enable (system tick) and by the CPU
// simulator once per user instruction (user tick).
func (i *Interrupt) OneTick(ticks int64) {
	i.st.TotalTicks += ticks
	if ticks == stats.SystemTick {
		i.st.SystemTicks += ticks
	} else {
		i.st.UserTicks += ticks
	}

	old := i.level
	i.level = Off
	i.checkIfDue()
	i.level = old

	if i.yieldOnReturn {
		i.yieldOnReturn = false
		if i.yieldFn != nil {
			i.yieldFn()
		}
	}
}

// YieldOnReturn is called by an interrupt handler that wants the interrupted
// thread to yield once the handler finishes.
func (i *Interrupt) YieldOnReturn() {
	if !i.inHandler {
		panic("interrupt: YieldOnReturn outside an interrupt handler")
	}
	i.yieldOnReturn = true
}

// Idle is called when no thread is ready to run. If an interrupt is pending,
// time skips ahead to it; otherwise nothing can ever make progress again, so
// the machine halts.
func (i *Interrupt) Idle() {
	if i.level != Off {
		panic("interrupt: Idle with interrupts enabled")
	}
	util.DPrintf(4, "interrupt: machine idle at tick %d", i.st.TotalTicks)
	if len(i.pending) == 0 {
		util.DPrintf(1, "interrupt: idle with no pending interrupts, halting")
		i.Halt()
		return
	}
	next := i.pending[0].when
	if next > i.st.TotalTicks {
		i.st.IdleTicks += next - i.st.TotalTicks
		i.st.TotalTicks = next
	}
	i.checkIfDue()
}

// Halt shuts the simulated machine down.
func (i *Interrupt) Halt() {
	i.haltFn()
}

// Schedule arranges for callback to run fromNow ticks in the future, in
// interrupt-handler context.
func (i *Interrupt) Schedule(callback func(), fromNow int64, typ Type) {
	if fromNow <= 0 {
		panic(fmt.Sprintf("interrupt: schedule %d ticks in the past", fromNow))
	}
	p := &pending{callback: callback, when: i.st.TotalTicks + fromNow, typ: typ}
	// insert keeping the queue sorted by when, FIFO among equals
	at := len(i.pending)
	for k, q := range i.pending {
		if p.when < q.when {
			at = k
			break
		}
	}
	i.pending = append(i.pending, nil)
	copy(i.pending[at+1:], i.pending[at:])
	i.pending[at] = p
}

// AnyFutureInterrupts reports whether anything is still scheduled.
func (i *Interrupt) AnyFutureInterrupts() bool {
	return len(i.pending) > 0
}

func (i *Interrupt) checkIfDue() {
	for len(i.pending) > 0 && i.pending[0].when <= i.st.TotalTicks {
		p := i.pending[0]
		i.pending = i.pending[1:]
		util.DPrintf(4, "interrupt: firing type %d scheduled for tick %d", p.typ, p.when)
		i.inHandler = true
		p.callback()
		i.inHandler = false
	}
}
