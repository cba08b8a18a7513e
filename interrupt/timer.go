package interrupt

import (
	"github.com/mit-pdos/go-nachos/stats"
)

// Timer fires a handler every stats.TimerTicks ticks of simulated time. The
// handler returns whether the timer should keep going; once it reports the
// machine fully quiescent the timer stops rescheduling itself so an idle
// machine can reach Halt instead of idling forever.
type Timer struct {
	i        *Interrupt
	interval int64
	handler  func() bool
}

func NewTimer(i *Interrupt, handler func() bool) *Timer {
	t := &Timer{
		i:        i,
		interval: stats.TimerTicks,
		handler:  handler,
	}
	i.Schedule(t.callback, t.interval, TimerInt)
	return t
}

func (t *Timer) callback() {
	if t.handler() {
		t.i.Schedule(t.callback, t.interval, TimerInt)
	}
}
