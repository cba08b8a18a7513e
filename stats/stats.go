// Package stats tracks simulated time and device activity for the kernel.
package stats

import (
	"bytes"
	"io"

	"github.com/rodaine/table"
)

// Ticks charged per simulated event. Re-enabling interrupts in kernel code
// advances the clock by SystemTick; each user instruction costs UserTick.
const (
	UserTick   int64 = 1
	SystemTick int64 = 10
	TimerTicks int64 = 100
)

type Stats struct {
	TotalTicks  int64
	IdleTicks   int64
	SystemTicks int64
	UserTicks   int64

	NumDiskReads            uint32
	NumDiskWrites           uint32
	NumConsoleCharsWritten  uint32
	NumPageFaults           uint32
}

func New() *Stats {
	return &Stats{}
}

func (s *Stats) WriteTable(w io.Writer) {
	tbl := table.New("counter", "value")
	tbl.AddRow("ticks: total", s.TotalTicks)
	tbl.AddRow("ticks: idle", s.IdleTicks)
	tbl.AddRow("ticks: system", s.SystemTicks)
	tbl.AddRow("ticks: user", s.UserTicks)
	tbl.AddRow("disk reads", s.NumDiskReads)
	tbl.AddRow("disk writes", s.NumDiskWrites)
	tbl.AddRow("console chars", s.NumConsoleCharsWritten)
	tbl.AddRow("page faults", s.NumPageFaults)
	tbl.WithWriter(w)
	tbl.Print()
}

func (s *Stats) FormatTable() string {
	buf := new(bytes.Buffer)
	s.WriteTable(buf)
	return buf.String()
}
