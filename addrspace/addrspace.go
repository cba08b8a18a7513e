// Package addrspace manages one user program's virtual memory: its page
// table, its saved register file, and the executable image pages are demand
// loaded from.
package addrspace

import (
	"github.com/mit-pdos/go-nachos/filesys"
	"github.com/mit-pdos/go-nachos/frame"
	"github.com/mit-pdos/go-nachos/machine"
	"github.com/mit-pdos/go-nachos/util"
)

// userStackPad keeps the initial stack pointer clear of the very top of the
// address space.
const userStackPad = 16

// AddrSpace owns the authoritative page table for one program. Pages start
// invalid and unbacked; the TLB refill path asks LoadPageFromDisk to fill a
// frame on first touch. Frames go back to the frame manager when the space
// is released.
type AddrSpace struct {
	cpu    machine.CPU
	frames *frame.Manager

	pageTable []machine.TranslationEntry
	numPages  int

	userRegisters [machine.NumTotalRegs]int

	execFile *filesys.OpenFile
}

func New(cpu machine.CPU, frames *frame.Manager) *AddrSpace {
	return &AddrSpace{cpu: cpu, frames: frames}
}

// Load sets the space up to run executable: the image is kept open and
// paged in on demand, so no frames are touched here.
func (s *AddrSpace) Load(executable *filesys.OpenFile) bool {
	if executable == nil {
		return false
	}
	size := executable.Length()
	s.numPages = util.DivRoundUp(size, machine.PageSize)
	if s.numPages == 0 {
		s.numPages = 1
	}
	util.DPrintf(1, "addrspace: %d pages for a %d byte image", s.numPages, size)

	s.pageTable = make([]machine.TranslationEntry, s.numPages)
	for i := range s.pageTable {
		s.pageTable[i] = machine.TranslationEntry{
			VirtualPage:  i,
			PhysicalPage: -1,
		}
	}
	s.execFile = executable
	return true
}

// Execute loads the image and drops into user mode; it returns only when
// the program traps out for good.
func (s *AddrSpace) Execute(executable *filesys.OpenFile) {
	if !s.Load(executable) {
		util.DPrintf(1, "addrspace: load failed")
		return
	}
	s.InitRegisters()
	s.RestoreState()
	s.cpu.Run()
}

// InitRegisters points the program counter at address zero and the stack at
// the top of the address space.
func (s *AddrSpace) InitRegisters() {
	for i := 0; i < machine.NumTotalRegs; i++ {
		s.userRegisters[i] = 0
	}
	s.userRegisters[machine.PCReg] = 0
	s.userRegisters[machine.NextPCReg] = 4
	s.userRegisters[machine.StackReg] = s.numPages*machine.PageSize - userStackPad
}

// LoadPageFromDisk fills frame ppn with virtual page vpn's bytes (zeroes
// past the image's end) and validates the page-table entry.
func (s *AddrSpace) LoadPageFromDisk(vpn int, ppn int) *machine.TranslationEntry {
	if vpn < 0 || vpn >= s.numPages {
		panic("addrspace: page fault outside the address space")
	}
	mem := s.cpu.MainMemory()
	dst := mem[ppn*machine.PageSize : (ppn+1)*machine.PageSize]
	for i := range dst {
		dst[i] = 0
	}
	off := vpn * machine.PageSize
	if s.execFile != nil && off < s.execFile.Length() {
		s.execFile.ReadAt(dst, off)
	}
	util.DPrintf(2, "addrspace: loaded vpn %d into frame %d", vpn, ppn)

	e := &s.pageTable[vpn]
	e.PhysicalPage = ppn
	e.Valid = true
	e.Use = false
	e.Dirty = false
	return e
}

// PageTableEntry returns the authoritative entry for vpn, or nil when vpn is
// out of range.
func (s *AddrSpace) PageTableEntry(vpn int) *machine.TranslationEntry {
	if vpn < 0 || vpn >= s.numPages {
		return nil
	}
	return &s.pageTable[vpn]
}

// SyncPageAttributes writes a TLB entry's use and dirty bits back to the
// page table, which stays the authoritative copy.
func (s *AddrSpace) SyncPageAttributes(vpn int, tlbEntry *machine.TranslationEntry) {
	e := s.PageTableEntry(vpn)
	if e == nil {
		return
	}
	e.Use = tlbEntry.Use
	e.Dirty = tlbEntry.Dirty
}

func (s *AddrSpace) NumPages() int {
	return s.numPages
}

// SaveState stashes the user register file on a context switch away from
// this space.
func (s *AddrSpace) SaveState() {
	for i := 0; i < machine.NumTotalRegs; i++ {
		s.userRegisters[i] = s.cpu.ReadRegister(i)
	}
}

// RestoreState reloads the register file when the owning thread is switched
// back in. Translations come back through TLB refills.
func (s *AddrSpace) RestoreState() {
	for i := 0; i < machine.NumTotalRegs; i++ {
		s.cpu.WriteRegister(i, s.userRegisters[i])
	}
}

// Release returns every resident page's frame; called when the owning
// thread is destroyed.
func (s *AddrSpace) Release() {
	for i := range s.pageTable {
		if s.pageTable[i].Valid {
			s.frames.Release(s.pageTable[i].PhysicalPage)
			s.pageTable[i].Valid = false
		}
	}
}
