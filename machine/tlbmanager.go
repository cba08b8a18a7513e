package machine

import (
	"github.com/mit-pdos/go-nachos/replacement"
	"github.com/mit-pdos/go-nachos/util"
)

// TLBManager is a fixed-capacity cache of page translations with a pluggable
// replacement strategy. The scheduler invalidates it wholesale on every
// context switch, since entries are only meaningful for the running address
// space.
type TLBManager struct {
	tlb      []TranslationEntry
	strategy replacement.Strategy
}

func NewTLBManager(size int, strategy replacement.Strategy) *TLBManager {
	if size <= 0 {
		panic("tlb: non-positive size")
	}
	m := &TLBManager{
		tlb:      make([]TranslationEntry, size),
		strategy: strategy,
	}
	return m
}

// FetchPageEntry returns the cached entry for vpn, or nil on a miss. A hit
// counts as a use for the replacement strategy.
func (m *TLBManager) FetchPageEntry(vpn int) *TranslationEntry {
	for i := range m.tlb {
		if m.tlb[i].Valid && m.tlb[i].VirtualPage == vpn {
			m.strategy.UpdateElementWeight(i)
			return &m.tlb[i]
		}
	}
	return nil
}

// CachePageEntry copies pageEntry into a free slot, or the strategy's victim
// when the TLB is full.
func (m *TLBManager) CachePageEntry(pageEntry *TranslationEntry) {
	target := m.findEntryToCache()
	m.tlb[target] = *pageEntry
	m.tlb[target].Valid = true
	m.strategy.UpdateElementWeight(target)
	util.DPrintf(3, "tlb: slot %d caches vpn %d", target, pageEntry.VirtualPage)
}

// CleanTLB invalidates every slot and resets the strategy's history.
func (m *TLBManager) CleanTLB() {
	util.DPrintf(3, "tlb: invalidating all entries")
	m.strategy.ResetStatus()
	for i := range m.tlb {
		m.tlb[i].Valid = false
		m.tlb[i].Dirty = false
	}
}

func (m *TLBManager) findEntryToCache() int {
	for i := range m.tlb {
		if !m.tlb[i].Valid {
			return i
		}
	}
	return m.strategy.FindOneToReplace()
}
