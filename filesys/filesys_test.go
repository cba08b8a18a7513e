package filesys

import (
	"bytes"
	"testing"

	"github.com/goose-lang/std"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-nachos/bitmap"
	"github.com/mit-pdos/go-nachos/interrupt"
	"github.com/mit-pdos/go-nachos/stats"
	"github.com/mit-pdos/go-nachos/synchdisk"
	"github.com/mit-pdos/go-nachos/thread"
)

type TestState struct {
	t  *testing.T
	sd *synchdisk.SynchDisk
	fs *FileSystem
}

func newTestState(t *testing.T) *TestState {
	st := stats.New()
	i := interrupt.New(st)
	i.SetHaltHandler(func() { panic("machine halted") })
	thread.Init(i, thread.NewScheduler(thread.FCFS, false))
	i.Enable()

	sd := synchdisk.New(disk.NewMemDisk(uint64(synchdisk.NumDiskBlocks)), st)
	return &TestState{t: t, sd: sd, fs: New(sd, true)}
}

func (ts *TestState) Create(path string, size int) {
	require.True(ts.t, ts.fs.Create(path, size, false), "create %s", path)
}

func (ts *TestState) CreateFail(path string, size int) {
	require.False(ts.t, ts.fs.Create(path, size, false), "create %s should fail", path)
}

func (ts *TestState) Mkdir(path string) {
	require.True(ts.t, ts.fs.Create(path, 0, true), "mkdir %s", path)
}

func (ts *TestState) Open(path string) *OpenFile {
	f := ts.fs.Open(path)
	require.NotNil(ts.t, f, "open %s", path)
	return f
}

func (ts *TestState) freeSectors() int {
	freeMap := NewPersistBitmap(synchdisk.NumSectors)
	freeMap.FetchFrom(ts.fs.freeMapFile)
	return freeMap.NumClear()
}

func mkdata(sz int) []byte {
	data := make([]byte, sz)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestFormatLaysOutWellKnownFiles(t *testing.T) {
	ts := newTestState(t)

	freeMap := NewPersistBitmap(synchdisk.NumSectors)
	freeMap.FetchFrom(ts.fs.freeMapFile)
	assert.True(t, freeMap.Test(FreeMapSector))
	assert.True(t, freeMap.Test(DirectorySector))

	assert.Equal(t, FreeMapFileSize, ts.fs.freeMapFile.Length())
	assert.Equal(t, DirectoryFileSize, ts.fs.directoryFile.Length())
}

func TestCreateOpenRemove(t *testing.T) {
	ts := newTestState(t)

	assert.Nil(t, ts.fs.Open("/f.txt"), "open before create")

	ts.Create("/f.txt", 100)
	f := ts.Open("/f.txt")
	assert.Equal(t, 100, f.Length())

	require.True(t, ts.fs.Remove("/f.txt"))
	assert.Nil(t, ts.fs.Open("/f.txt"))
	assert.False(t, ts.fs.Remove("/f.txt"))
}

func TestCreateRejectsBadNames(t *testing.T) {
	ts := newTestState(t)

	ts.Create("/f.txt", 0)
	ts.CreateFail("/f.txt", 0)         // duplicate
	ts.CreateFail("/", 0)              // empty component
	ts.CreateFail("", 0)               // empty path
	ts.CreateFail("/waytoolongname", 0) // over FileNameMaxLen
	ts.CreateFail("/missing/f", 0)     // parent does not exist
}

func TestWriteReadRoundTrip(t *testing.T) {
	ts := newTestState(t)

	data := mkdata(1095)
	ts.Create("/data", len(data))
	f := ts.Open("/data")
	require.Equal(t, len(data), f.WriteAt(data, 0))

	got := make([]byte, len(data))
	require.Equal(t, len(data), f.ReadAt(got, 0))
	assert.True(t, std.BytesEqual(data, got))

	// a fresh handle sees the same bytes
	g := ts.Open("/data")
	got2 := make([]byte, len(data))
	require.Equal(t, len(data), g.Read(got2))
	assert.True(t, std.BytesEqual(data, got2))
}

func TestSeekAndSequentialReadWrite(t *testing.T) {
	ts := newTestState(t)

	ts.Create("/seq", 300)
	f := ts.Open("/seq")
	require.Equal(t, 100, f.Write(mkdata(100)))
	require.Equal(t, 100, f.Write(mkdata(100)))

	f.Seek(0)
	buf := make([]byte, 100)
	require.Equal(t, 100, f.Read(buf))
	assert.True(t, std.BytesEqual(mkdata(100), buf))
	require.Equal(t, 100, f.Read(buf))
	assert.True(t, std.BytesEqual(mkdata(100), buf))
}

func TestWritesDoNotExtendFiles(t *testing.T) {
	ts := newTestState(t)

	ts.Create("/small", 64)
	f := ts.Open("/small")
	assert.Equal(t, 64, f.WriteAt(mkdata(100), 0))
	assert.Equal(t, 0, f.WriteAt(mkdata(10), 64))
	assert.Equal(t, 0, f.ReadAt(make([]byte, 10), 64))
}

func TestLargeFileChainsHeaders(t *testing.T) {
	ts := newTestState(t)

	size := MaxFileSize + 100
	ts.Create("/big", size)
	f := ts.Open("/big")
	require.Equal(t, size, f.Length())
	require.Equal(t, 2, f.Header().NumHeaders())

	// distinct bytes written across the chain boundary read back identically
	data := mkdata(100)
	require.Equal(t, 100, f.WriteAt(data, MaxFileSize))
	got := make([]byte, 100)
	require.Equal(t, 100, f.ReadAt(got, MaxFileSize))
	assert.True(t, std.BytesEqual(data, got))

	// and a straddling write survives too
	straddle := mkdata(200)
	require.Equal(t, 200, f.WriteAt(straddle, MaxFileSize-100))
	got = make([]byte, 200)
	require.Equal(t, 200, f.ReadAt(got, MaxFileSize-100))
	assert.True(t, std.BytesEqual(straddle, got))
}

func TestFileHeaderWriteBackFetchFromIdentity(t *testing.T) {
	ts := newTestState(t)

	freeMap := NewPersistBitmap(synchdisk.NumSectors)
	freeMap.FetchFrom(ts.fs.freeMapFile)
	hdrSector := freeMap.FindAndSet()
	require.NotEqual(t, -1, hdrSector)

	hdr := NewFileHeader()
	require.True(t, hdr.Allocate(freeMap.Bitmap, MaxFileSize+50))
	hdr.WriteBack(ts.sd, hdrSector)

	fetched := NewFileHeader()
	fetched.FetchFrom(ts.sd, hdrSector)
	assert.Equal(t, hdr.FileLength(), fetched.FileLength())
	assert.Equal(t, hdr.NumHeaders(), fetched.NumHeaders())
	for off := 0; off < MaxFileSize+50; off += synchdisk.SectorSize {
		assert.Equal(t, hdr.ByteToSector(off), fetched.ByteToSector(off))
	}
}

func TestHeaderChainLengthIsSumOfParts(t *testing.T) {
	fm := bitmap.New(synchdisk.NumSectors)
	hdr := NewFileHeader()
	size := 2*MaxFileSize + 77
	require.True(t, hdr.Allocate(fm, size))
	assert.Equal(t, 3, hdr.NumHeaders())

	sum := 0
	for h := hdr; h != nil; h = h.nextHeader {
		sum += int(h.numBytes)
	}
	assert.Equal(t, size, sum)
	assert.Equal(t, size, hdr.FileLength())
}

func TestRemoveReturnsAllSectors(t *testing.T) {
	ts := newTestState(t)

	before := ts.freeSectors()
	ts.Create("/big", MaxFileSize+100)
	require.Less(t, ts.freeSectors(), before)
	require.True(t, ts.fs.Remove("/big"))
	assert.Equal(t, before, ts.freeSectors())
}

func TestDirectoryHierarchy(t *testing.T) {
	ts := newTestState(t)

	ts.Mkdir("/sub")
	ts.Create("/sub/f", 10)
	f := ts.Open("/sub/f")
	assert.Equal(t, 10, f.Length())

	// the same name can live in different directories
	ts.Create("/f", 20)
	assert.Equal(t, 20, ts.Open("/f").Length())
	assert.Equal(t, 10, ts.Open("/sub/f").Length())

	ts.Mkdir("/sub/deeper")
	ts.Create("/sub/deeper/g", 5)
	assert.NotNil(t, ts.fs.Open("/sub/deeper/g"))

	// a file is not a directory
	assert.Nil(t, ts.fs.Open("/f/x"))
}

func TestOpenRejectsDirectories(t *testing.T) {
	ts := newTestState(t)
	ts.Mkdir("/sub")
	assert.Nil(t, ts.fs.Open("/sub"))
}

func TestRemoveRejectsDirectories(t *testing.T) {
	ts := newTestState(t)
	ts.Mkdir("/sub")
	assert.False(t, ts.fs.Remove("/sub"))
}

func TestList(t *testing.T) {
	ts := newTestState(t)
	var buf bytes.Buffer
	ts.fs.SetOutput(&buf)

	ts.Mkdir("/sub")
	ts.Create("/a", 0)
	ts.fs.List("/")
	out := buf.String()
	assert.Contains(t, out, "DIR  sub")
	assert.Contains(t, out, "FILE a")

	buf.Reset()
	ts.fs.List("/a")
	assert.Equal(t, "FILE a\n", buf.String())
}

func TestDirectoryFullRejectsCreate(t *testing.T) {
	newTestState(t)

	d := NewDirectory(2)
	require.True(t, d.Add("a", 10, false))
	require.True(t, d.Add("b", 11, true))
	assert.False(t, d.Add("c", 12, false))
	assert.False(t, d.Add("a", 13, false))

	require.True(t, d.Remove("a"))
	assert.True(t, d.Add("c", 12, false))
}

func TestDirectoryPersistence(t *testing.T) {
	ts := newTestState(t)

	d := NewDirectory(NumDirEntries)
	d.FetchFrom(ts.fs.directoryFile)
	require.True(t, d.Add("hello", 42, false))
	require.True(t, d.Add("world", 43, true))
	d.WriteBack(ts.fs.directoryFile)

	e := NewDirectory(NumDirEntries)
	e.FetchFrom(ts.fs.directoryFile)
	assert.Equal(t, 42, e.Find("hello"))
	assert.False(t, e.IsDir("hello"))
	assert.Equal(t, 43, e.Find("world"))
	assert.True(t, e.IsDir("world"))
	assert.Equal(t, -1, e.Find("absent"))
}

func TestFreeMapMatchesReachableSectors(t *testing.T) {
	ts := newTestState(t)

	ts.Create("/a", 500)
	ts.Create("/b", MaxFileSize+1)

	freeMap := NewPersistBitmap(synchdisk.NumSectors)
	freeMap.FetchFrom(ts.fs.freeMapFile)

	// collect every sector reachable from the well-known headers and the
	// directory's files
	used := map[int]bool{FreeMapSector: true, DirectorySector: true}
	markChain := func(sector int) {
		hdr := NewFileHeader()
		hdr.FetchFrom(ts.sd, sector)
		for h := hdr; h != nil; h = h.nextHeader {
			for i := 0; i < int(h.numSectors); i++ {
				used[int(h.dataSectors[i])] = true
			}
			if h.nextHeaderSector != -1 {
				used[int(h.nextHeaderSector)] = true
			}
		}
	}
	markChain(FreeMapSector)
	markChain(DirectorySector)

	d := NewDirectory(NumDirEntries)
	d.FetchFrom(ts.fs.directoryFile)
	for i := range d.table {
		if d.table[i].InUse {
			used[int(d.table[i].Sector)] = true
			markChain(int(d.table[i].Sector))
		}
	}

	for s := 0; s < synchdisk.NumSectors; s++ {
		assert.Equal(t, used[s], freeMap.Test(s), "sector %d", s)
	}
}

func TestCreateFailureRollsBack(t *testing.T) {
	ts := newTestState(t)

	before := ts.freeSectors()
	// far larger than the disk
	ts.CreateFail("/huge", synchdisk.NumSectors*synchdisk.SectorSize)
	assert.Equal(t, before, ts.freeSectors())
	assert.Nil(t, ts.fs.Open("/huge"))
}

func TestPersistBitmapRoundTrip(t *testing.T) {
	ts := newTestState(t)

	m := NewPersistBitmap(synchdisk.NumSectors)
	m.FetchFrom(ts.fs.freeMapFile)
	free := m.FindAndSet()
	require.NotEqual(t, -1, free)
	m.WriteBack(ts.fs.freeMapFile)

	n := NewPersistBitmap(synchdisk.NumSectors)
	n.FetchFrom(ts.fs.freeMapFile)
	assert.True(t, n.Test(free))
	assert.Equal(t, m.NumClear(), n.NumClear())
}
