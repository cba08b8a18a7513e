// Package synchdisk exposes the simulated raw disk as a synchronous array
// of small sectors. NachOS sectors are much smaller than the underlying
// disk's blocks, so sectors are packed: sector s lives at offset
// (s % SectorsPerBlock) * SectorSize within block s / SectorsPerBlock.
package synchdisk

import (
	"fmt"

	"github.com/goose-lang/std"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-nachos/stats"
	"github.com/mit-pdos/go-nachos/thread"
	"github.com/mit-pdos/go-nachos/util"
)

const (
	SectorSize      = 128
	NumSectors      = 1024
	SectorsPerBlock = int(disk.BlockSize) / SectorSize
	NumDiskBlocks   = NumSectors / SectorsPerBlock
)

// SynchDisk serializes sector access with a kernel lock: only one thread's
// request is outstanding at a time, and each request completes before the
// call returns.
type SynchDisk struct {
	d    disk.Disk
	lock *thread.Lock
	st   *stats.Stats
}

func New(d disk.Disk, st *stats.Stats) *SynchDisk {
	if d.Size() < uint64(NumDiskBlocks) {
		panic(fmt.Sprintf("synchdisk: disk has %d blocks, need %d", d.Size(), NumDiskBlocks))
	}
	return &SynchDisk{
		d:    d,
		lock: thread.NewLock("synch disk lock"),
		st:   st,
	}
}

// ReadSector returns a fresh copy of the sector's SectorSize bytes.
func (sd *SynchDisk) ReadSector(sector int) []byte {
	checkSector(sector)
	sd.lock.Acquire()
	blk := sd.d.Read(uint64(sector / SectorsPerBlock))
	off := (sector % SectorsPerBlock) * SectorSize
	buf := std.BytesClone(blk[off : off+SectorSize])
	sd.st.NumDiskReads++
	sd.lock.Release()
	util.DPrintf(4, "synchdisk: read sector %d", sector)
	return buf
}

// WriteSector stores the first SectorSize bytes of data at sector, leaving
// the rest of the underlying block intact.
func (sd *SynchDisk) WriteSector(sector int, data []byte) {
	checkSector(sector)
	if len(data) < SectorSize {
		panic("synchdisk: short sector write")
	}
	sd.lock.Acquire()
	bn := uint64(sector / SectorsPerBlock)
	blk := sd.d.Read(bn)
	off := (sector % SectorsPerBlock) * SectorSize
	copy(blk[off:off+SectorSize], data[:SectorSize])
	sd.d.Write(bn, blk)
	sd.st.NumDiskWrites++
	sd.lock.Release()
	util.DPrintf(4, "synchdisk: wrote sector %d", sector)
}

func checkSector(sector int) {
	if sector < 0 || sector >= NumSectors {
		panic(fmt.Sprintf("synchdisk: sector %d out of range [0, %d)", sector, NumSectors))
	}
}
