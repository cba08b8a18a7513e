// Package userprog dispatches user-mode traps into kernel operations:
// decoding the trap frame, copying arguments out of user memory, running
// the requested kernel service, and marshalling the result back into r2.
package userprog

import (
	"fmt"

	"github.com/mit-pdos/go-nachos/addrspace"
	"github.com/mit-pdos/go-nachos/console"
	"github.com/mit-pdos/go-nachos/coremap"
	"github.com/mit-pdos/go-nachos/filesys"
	"github.com/mit-pdos/go-nachos/interrupt"
	"github.com/mit-pdos/go-nachos/machine"
	"github.com/mit-pdos/go-nachos/thread"
	"github.com/mit-pdos/go-nachos/util"
)

type ExceptionHandler struct {
	cpu     machine.CPU
	fs      *filesys.FileSystem
	console *console.SynchConsoleOutput
	coreMap *coremap.Manager
	intr    *interrupt.Interrupt
}

func NewExceptionHandler(cpu machine.CPU, fs *filesys.FileSystem,
	consoleOut *console.SynchConsoleOutput, coreMap *coremap.Manager,
	intr *interrupt.Interrupt) *ExceptionHandler {
	return &ExceptionHandler{
		cpu:     cpu,
		fs:      fs,
		console: consoleOut,
		coreMap: coreMap,
		intr:    intr,
	}
}

// HandleException is the trap entry point, called by the CPU simulator.
func (h *ExceptionHandler) HandleException(which machine.ExceptionType) {
	switch which {
	case machine.SyscallException:
		h.handleSyscall()
	case machine.PageFaultException:
		badVAddr := h.cpu.ReadRegister(machine.BadVAddrReg)
		vpn := badVAddr / machine.PageSize
		util.DPrintf(2, "userprog: page fault at vaddr %d (vpn %d)", badVAddr, vpn)
		space := currentSpace()
		h.coreMap.PushEntryToTLB(space, vpn)
	default:
		panic(fmt.Sprintf("userprog: unexpected user mode exception %d", which))
	}
}

func (h *ExceptionHandler) handleSyscall() {
	callType := h.cpu.ReadRegister(machine.SyscallNumReg)
	switch callType {
	case SCHalt:
		util.DPrintf(1, "userprog: shutdown, initiated by user program")
		h.intr.Halt()

	case SCExit:
		status := h.cpu.ReadRegister(machine.SyscallArg1)
		util.DPrintf(1, "userprog: exit with status %d", status)
		thread.Current().Finish()

	case SCCreate:
		nameAddr := h.cpu.ReadRegister(machine.SyscallArg1)
		name, ok := h.readString(nameAddr, MaxFileNameLength)
		if !ok || len(name) == 0 {
			util.DPrintf(1, "userprog: illegal file name string at address %d", nameAddr)
			h.setResult(-1)
		} else if h.fs.Create(name, 0, false) {
			util.DPrintf(1, "userprog: created %q", name)
			h.setResult(0)
		} else {
			util.DPrintf(1, "userprog: create %q failed", name)
			h.setResult(-1)
		}
		h.advancePC()

	case SCOpen:
		nameAddr := h.cpu.ReadRegister(machine.SyscallArg1)
		name, ok := h.readString(nameAddr, MaxFileNameLength)
		if !ok || len(name) == 0 {
			util.DPrintf(1, "userprog: illegal file name string at address %d", nameAddr)
			h.setResult(-1)
			h.advancePC()
			break
		}
		file := h.fs.Open(name)
		if file == nil {
			util.DPrintf(1, "userprog: open %q failed", name)
			h.setResult(-1)
			h.advancePC()
			break
		}
		fd := thread.Current().Files().Add(file)
		if fd == -1 {
			util.DPrintf(1, "userprog: no free descriptor for %q", name)
			h.setResult(-1)
		} else {
			util.DPrintf(1, "userprog: opened %q as fd %d", name, fd)
			h.setResult(fd)
		}
		h.advancePC()

	case SCRead:
		bufAddr := h.cpu.ReadRegister(machine.SyscallArg1)
		n := h.cpu.ReadRegister(machine.SyscallArg2)
		fd := h.cpu.ReadRegister(machine.SyscallArg3)
		h.setResult(h.doRead(bufAddr, n, fd))
		h.advancePC()

	case SCWrite:
		bufAddr := h.cpu.ReadRegister(machine.SyscallArg1)
		n := h.cpu.ReadRegister(machine.SyscallArg2)
		fd := h.cpu.ReadRegister(machine.SyscallArg3)
		h.setResult(h.doWrite(bufAddr, n, fd))
		h.advancePC()

	case SCClose:
		fd := h.cpu.ReadRegister(machine.SyscallArg1)
		if thread.Current().Files().Remove(fd) {
			util.DPrintf(1, "userprog: closed fd %d", fd)
			h.setResult(0)
		} else {
			h.setResult(-1)
		}
		h.advancePC()

	case SCPrintInt:
		value := h.cpu.ReadRegister(machine.SyscallArg1)
		h.console.PutInt(value)
		h.advancePC()

	case SCPrintChar:
		value := h.cpu.ReadRegister(machine.SyscallArg1)
		h.console.PutChar(byte(value))
		h.advancePC()

	default:
		panic(fmt.Sprintf("userprog: unexpected system call %d", callType))
	}
}

func (h *ExceptionHandler) doRead(bufAddr int, n int, fd int) int {
	if n <= 0 {
		return -1
	}
	file := thread.Current().Files().Get(fd)
	if file == nil {
		return -1
	}
	buf := make([]byte, n)
	got := file.Read(buf)
	for i := 0; i < got; i++ {
		if !h.cpu.WriteMem(bufAddr+i, 1, int(buf[i])) {
			return -1
		}
	}
	return got
}

func (h *ExceptionHandler) doWrite(bufAddr int, n int, fd int) int {
	if n < 0 {
		return -1
	}
	file := thread.Current().Files().Get(fd)
	if file == nil {
		return -1
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		ch, ok := h.cpu.ReadMem(bufAddr+i, 1)
		if !ok {
			return -1
		}
		buf[i] = byte(ch)
	}
	return file.Write(buf)
}

// readString copies a NUL-terminated string out of user memory, one byte at
// a time; a nil pointer or non-positive limit fails.
func (h *ExceptionHandler) readString(addr int, limit int) (string, bool) {
	if addr == 0 || limit <= 0 {
		return "", false
	}
	var buf []byte
	for i := 0; i < limit; i++ {
		ch, ok := h.cpu.ReadMem(addr+i, 1)
		if !ok {
			return "", false
		}
		if ch == 0 {
			break
		}
		buf = append(buf, byte(ch))
	}
	return string(buf), true
}

func (h *ExceptionHandler) setResult(value int) {
	h.cpu.WriteRegister(machine.SyscallRetReg, value)
}

// advancePC steps the saved program counter past the trap instruction so
// the syscall does not re-execute on return.
func (h *ExceptionHandler) advancePC() {
	h.cpu.WriteRegister(machine.PrevPCReg, h.cpu.ReadRegister(machine.PCReg))
	h.cpu.WriteRegister(machine.PCReg, h.cpu.ReadRegister(machine.NextPCReg))
	h.cpu.WriteRegister(machine.NextPCReg, h.cpu.ReadRegister(machine.NextPCReg)+4)
}

func currentSpace() *addrspace.AddrSpace {
	space, ok := thread.Current().Space.(*addrspace.AddrSpace)
	if !ok {
		panic("userprog: fault from a thread with no address space")
	}
	return space
}
