package synchdisk

import (
	"testing"

	"github.com/goose-lang/std"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-nachos/interrupt"
	"github.com/mit-pdos/go-nachos/stats"
	"github.com/mit-pdos/go-nachos/thread"
)

func newTestDisk() (*SynchDisk, *stats.Stats) {
	st := stats.New()
	i := interrupt.New(st)
	i.SetHaltHandler(func() { panic("machine halted") })
	thread.Init(i, thread.NewScheduler(thread.FCFS, false))
	i.Enable()
	return New(disk.NewMemDisk(uint64(NumDiskBlocks)), st), st
}

func sectorData(fill byte) []byte {
	data := make([]byte, SectorSize)
	for i := range data {
		data[i] = fill
	}
	return data
}

func TestWriteReadRoundTrip(t *testing.T) {
	sd, st := newTestDisk()
	data := sectorData(0xab)
	sd.WriteSector(17, data)
	got := sd.ReadSector(17)
	assert.True(t, std.BytesEqual(data, got))
	assert.Equal(t, uint32(1), st.NumDiskWrites)
}

func TestSectorsPackedInOneBlockStayDistinct(t *testing.T) {
	sd, _ := newTestDisk()
	require.Greater(t, SectorsPerBlock, 1)

	// sectors 0 and 1 share the first disk block
	sd.WriteSector(0, sectorData(0x11))
	sd.WriteSector(1, sectorData(0x22))
	assert.True(t, std.BytesEqual(sectorData(0x11), sd.ReadSector(0)))
	assert.True(t, std.BytesEqual(sectorData(0x22), sd.ReadSector(1)))
}

func TestSectorsAcrossBlockBoundary(t *testing.T) {
	sd, _ := newTestDisk()
	last := SectorsPerBlock - 1
	sd.WriteSector(last, sectorData(0x33))
	sd.WriteSector(last+1, sectorData(0x44))
	assert.True(t, std.BytesEqual(sectorData(0x33), sd.ReadSector(last)))
	assert.True(t, std.BytesEqual(sectorData(0x44), sd.ReadSector(last+1)))
}

func TestReadReturnsACopy(t *testing.T) {
	sd, _ := newTestDisk()
	sd.WriteSector(5, sectorData(0x55))
	got := sd.ReadSector(5)
	got[0] = 0x99
	assert.Equal(t, byte(0x55), sd.ReadSector(5)[0])
}

func TestSectorRangeChecked(t *testing.T) {
	sd, _ := newTestDisk()
	require.Panics(t, func() { sd.ReadSector(-1) })
	require.Panics(t, func() { sd.ReadSector(NumSectors) })
	require.Panics(t, func() { sd.WriteSector(3, make([]byte, 7)) })
}
