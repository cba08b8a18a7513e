// Package console provides the kernel's synchronous console output. The
// device simulation itself is external; what the kernel needs is serialized,
// counted output for the PrintInt and PrintChar syscalls.
package console

import (
	"fmt"
	"io"

	"github.com/mit-pdos/go-nachos/stats"
	"github.com/mit-pdos/go-nachos/thread"
)

type SynchConsoleOutput struct {
	lock *thread.Lock
	w    io.Writer
	st   *stats.Stats
}

func NewSynchConsoleOutput(w io.Writer, st *stats.Stats) *SynchConsoleOutput {
	return &SynchConsoleOutput{
		lock: thread.NewLock("console output lock"),
		w:    w,
		st:   st,
	}
}

func (c *SynchConsoleOutput) PutChar(ch byte) {
	c.lock.Acquire()
	fmt.Fprintf(c.w, "%c", ch)
	c.st.NumConsoleCharsWritten++
	c.lock.Release()
}

// PutInt writes the decimal rendering of value and a newline.
func (c *SynchConsoleOutput) PutInt(value int) {
	c.lock.Acquire()
	n, _ := fmt.Fprintf(c.w, "%d\n", value)
	c.st.NumConsoleCharsWritten += uint32(n)
	c.lock.Release()
}
