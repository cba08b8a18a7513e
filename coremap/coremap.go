// Package coremap maintains the reverse mapping from physical frames to the
// address space and virtual page occupying them, and drives TLB refill.
package coremap

import (
	"github.com/mit-pdos/go-nachos/addrspace"
	"github.com/mit-pdos/go-nachos/frame"
	"github.com/mit-pdos/go-nachos/machine"
	"github.com/mit-pdos/go-nachos/stats"
	"github.com/mit-pdos/go-nachos/util"
)

// Entry records which space and vpn occupy one physical frame. The owner
// reference is a weak back-pointer; a released space's entries simply go
// stale until the frame is reused.
type Entry struct {
	vpn   int
	owner *addrspace.AddrSpace
}

type Manager struct {
	entries []Entry
	frames  *frame.Manager
	tlb     *machine.TLBManager
	st      *stats.Stats
}

func NewManager(size int, frames *frame.Manager, tlb *machine.TLBManager, st *stats.Stats) *Manager {
	return &Manager{
		entries: make([]Entry, size),
		frames:  frames,
		tlb:     tlb,
		st:      st,
	}
}

// PushEntryToTLB resolves a TLB miss for space's vpn: find the resident
// page, or fault it in through a fresh frame, then cache the translation.
// With physical memory exhausted there is nowhere to put the page — core
// pages have no replacement policy (no swap device) — so that is fatal.
func (m *Manager) PushEntryToTLB(space *addrspace.AddrSpace, vpn int) {
	target := m.FetchPageEntry(space, vpn)
	if target == nil {
		ppn := m.frames.Acquire()
		if ppn == -1 {
			panic("coremap: out of physical frames and no replacement policy for core pages")
		}
		util.DPrintf(2, "coremap: faulting vpn %d into frame %d", vpn, ppn)
		target = space.LoadPageFromDisk(vpn, ppn)
		m.entries[ppn] = Entry{vpn: vpn, owner: space}
		m.st.NumPageFaults++
	}
	m.tlb.CachePageEntry(target)
}

// FetchPageEntry scans for space's vpn among resident frames, returning the
// authoritative page-table entry or nil if the page is not resident.
func (m *Manager) FetchPageEntry(space *addrspace.AddrSpace, vpn int) *machine.TranslationEntry {
	var target *machine.TranslationEntry
	for i := range m.entries {
		if m.entries[i].owner == space && m.entries[i].vpn == vpn {
			target = space.PageTableEntry(vpn)
		}
	}
	return target
}

// SyncPage writes a TLB entry's use/dirty bits through to the page table of
// whatever space owns frame ppn.
func (m *Manager) SyncPage(ppn int, vpn int, tlbEntry *machine.TranslationEntry) {
	if m.entries[ppn].owner == nil {
		return
	}
	m.entries[ppn].owner.SyncPageAttributes(vpn, tlbEntry)
}
