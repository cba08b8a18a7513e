// Package kernel assembles the simulator: interrupts, scheduler, threads,
// disk, filesystem, virtual memory, console, and the syscall dispatcher, in
// dependency order.
package kernel

import (
	"os"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-nachos/addrspace"
	"github.com/mit-pdos/go-nachos/console"
	"github.com/mit-pdos/go-nachos/coremap"
	"github.com/mit-pdos/go-nachos/filesys"
	"github.com/mit-pdos/go-nachos/frame"
	"github.com/mit-pdos/go-nachos/interrupt"
	"github.com/mit-pdos/go-nachos/machine"
	"github.com/mit-pdos/go-nachos/replacement"
	"github.com/mit-pdos/go-nachos/stats"
	"github.com/mit-pdos/go-nachos/synchdisk"
	"github.com/mit-pdos/go-nachos/thread"
	"github.com/mit-pdos/go-nachos/userprog"
	"github.com/mit-pdos/go-nachos/util"
)

type Kernel struct {
	opts Options

	Stats     *stats.Stats
	Interrupt *interrupt.Interrupt
	Scheduler *thread.Scheduler
	Timer     *interrupt.Timer

	SynchDisk  *synchdisk.SynchDisk
	FileSystem *filesys.FileSystem

	FrameManager *frame.Manager
	TLB          *machine.TLBManager
	CoreMap      *coremap.Manager

	ConsoleOut *console.SynchConsoleOutput
	Exception  *userprog.ExceptionHandler

	// CPU is the simulated processor; nil for filesystem-utility runs that
	// never enter user mode.
	CPU machine.CPU
}

func New(opts Options, cpu machine.CPU) *Kernel {
	return &Kernel{opts: opts, CPU: cpu}
}

// Initialize brings the kernel up. Order matters: threads need interrupts,
// the disk needs threads (its lock), the filesystem needs the disk, and
// virtual memory needs the filesystem-backed images.
func (k *Kernel) Initialize() {
	k.Stats = stats.New()
	k.Interrupt = interrupt.New(k.Stats)

	k.Scheduler = thread.NewScheduler(k.opts.SchedulerType, k.opts.Preemptive)
	thread.Init(k.Interrupt, k.Scheduler)

	k.Timer = interrupt.NewTimer(k.Interrupt, k.timerTick)

	var d disk.Disk
	if k.opts.DiskPath != "" {
		util.DPrintf(0, "kernel: opening file disk %s", k.opts.DiskPath)
		fd, err := disk.NewFileDisk(k.opts.DiskPath, uint64(synchdisk.NumDiskBlocks))
		if err != nil {
			panic("kernel: cannot create disk image: " + err.Error())
		}
		d = fd
	} else {
		util.DPrintf(0, "kernel: using in-memory disk")
		d = disk.NewMemDisk(uint64(synchdisk.NumDiskBlocks))
	}
	k.SynchDisk = synchdisk.New(d, k.Stats)
	k.FileSystem = filesys.New(k.SynchDisk, k.opts.Format)

	k.FrameManager = frame.NewManager(machine.NumPhysPages)
	k.TLB = machine.NewTLBManager(machine.TLBSize,
		replacement.NewLRU(machine.TLBSize, func() int64 { return k.Stats.TotalTicks }))
	thread.SetTLBFlush(k.TLB.CleanTLB)
	k.CoreMap = coremap.NewManager(machine.NumPhysPages, k.FrameManager, k.TLB, k.Stats)

	k.ConsoleOut = console.NewSynchConsoleOutput(os.Stdout, k.Stats)

	if k.CPU != nil {
		k.Exception = userprog.NewExceptionHandler(k.CPU, k.FileSystem,
			k.ConsoleOut, k.CoreMap, k.Interrupt)
	}

	k.Interrupt.Enable()
}

// timerTick runs in interrupt context every timer interval: wake sleepers,
// preempt if the policy wants time slicing, and wind the timer down once
// nothing can ever run again.
func (k *Kernel) timerTick() bool {
	k.Scheduler.WakeUpSleepingThread()
	if k.Scheduler.IsPreemptive() {
		k.Interrupt.YieldOnReturn()
	}
	idle := thread.Current().Status() == thread.StatusBlocked &&
		k.Scheduler.Quiescent() &&
		!k.Interrupt.AnyFutureInterrupts()
	return !idle
}

// Run executes the startup filesystem command, forks the queued user
// programs, and retires the bootstrap thread. The machine halts when the
// last thread finishes.
func (k *Kernel) Run() {
	switch k.opts.FsCmd {
	case FsPut:
		k.FileSystem.Put(k.opts.LocalPath, k.opts.NachosPath)
	case FsMkdir:
		k.FileSystem.Create(k.opts.NachosPath, 0, true)
	case FsList:
		k.FileSystem.List(k.opts.NachosPath)
	case FsRemove:
		k.FileSystem.Remove(k.opts.NachosPath)
	case FsPrint:
		k.FileSystem.Print()
	case FsCat:
		k.FileSystem.PrintFile(k.opts.NachosPath)
	case FsNone:
	}

	util.DPrintf(1, "kernel: %d user program(s) queued", len(k.opts.Programs))
	if len(k.opts.Programs) > 0 && k.CPU == nil {
		util.DPrintf(0, "kernel: no CPU simulator attached, cannot run user programs")
		k.opts.Programs = nil
	}
	for _, path := range k.opts.Programs {
		t := thread.New(path, 0, false)
		t.Space = addrspace.New(k.CPU, k.FrameManager)
		p := path
		t.Fork(func(arg interface{}) {
			k.executeProgram(p)
		}, nil)
	}

	thread.Current().Finish()
}

func (k *Kernel) executeProgram(path string) {
	util.DPrintf(1, "kernel: executing %s", path)
	executable := k.FileSystem.Open(path)
	if executable == nil {
		util.DPrintf(0, "kernel: cannot open executable %s", path)
		return
	}
	space := thread.Current().Space.(*addrspace.AddrSpace)
	space.Execute(executable)
}
