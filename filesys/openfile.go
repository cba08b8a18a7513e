package filesys

import (
	"github.com/mit-pdos/go-nachos/synchdisk"
	"github.com/mit-pdos/go-nachos/util"
)

// OpenFile is a handle on a file's header plus a seek position. Read and
// Write advance the position; ReadAt and WriteAt are stateless. Files do not
// grow: writes past the allocated length are truncated.
type OpenFile struct {
	sd           *synchdisk.SynchDisk
	hdr          *FileHeader
	seekPosition int
}

// NewOpenFile opens the file whose header lives at sector.
func NewOpenFile(sd *synchdisk.SynchDisk, sector int) *OpenFile {
	hdr := NewFileHeader()
	hdr.FetchFrom(sd, sector)
	return &OpenFile{sd: sd, hdr: hdr}
}

func (f *OpenFile) Seek(position int) {
	f.seekPosition = position
}

// Length is the file size in bytes.
func (f *OpenFile) Length() int {
	return f.hdr.FileLength()
}

// Header exposes the file's header chain (the filesystem uses it for
// printing and removal).
func (f *OpenFile) Header() *FileHeader {
	return f.hdr
}

func (f *OpenFile) Read(p []byte) int {
	n := f.ReadAt(p, f.seekPosition)
	f.seekPosition += n
	return n
}

func (f *OpenFile) Write(p []byte) int {
	n := f.WriteAt(p, f.seekPosition)
	f.seekPosition += n
	return n
}

// ReadAt copies up to len(p) bytes starting at position into p, returning
// how many were available.
func (f *OpenFile) ReadAt(p []byte, position int) int {
	fileLength := f.hdr.FileLength()
	numBytes := len(p)
	if numBytes <= 0 || position < 0 || position >= fileLength {
		return 0
	}
	if position+numBytes > fileLength {
		numBytes = fileLength - position
	}
	util.DPrintf(3, "filesys: reading %d bytes at offset %d (file length %d)",
		numBytes, position, fileLength)

	firstSector := position / synchdisk.SectorSize
	lastSector := (position + numBytes - 1) / synchdisk.SectorSize

	buf := make([]byte, (lastSector-firstSector+1)*synchdisk.SectorSize)
	for i := firstSector; i <= lastSector; i++ {
		sector := f.hdr.ByteToSector(i * synchdisk.SectorSize)
		copy(buf[(i-firstSector)*synchdisk.SectorSize:], f.sd.ReadSector(sector))
	}
	copy(p[:numBytes], buf[position-firstSector*synchdisk.SectorSize:])
	return numBytes
}

// WriteAt stores up to len(p) bytes at position, returning how many fit
// within the file's allocated length. Partial first and last sectors are
// read back first so the bytes around the write survive.
func (f *OpenFile) WriteAt(p []byte, position int) int {
	fileLength := f.hdr.FileLength()
	numBytes := len(p)
	if numBytes <= 0 || position < 0 || position >= fileLength {
		return 0
	}
	if position+numBytes > fileLength {
		numBytes = fileLength - position
	}
	util.DPrintf(3, "filesys: writing %d bytes at offset %d (file length %d)",
		numBytes, position, fileLength)

	firstSector := position / synchdisk.SectorSize
	lastSector := (position + numBytes - 1) / synchdisk.SectorSize

	buf := make([]byte, (lastSector-firstSector+1)*synchdisk.SectorSize)
	firstAligned := position == firstSector*synchdisk.SectorSize
	lastAligned := position+numBytes == (lastSector+1)*synchdisk.SectorSize
	if !firstAligned {
		copy(buf[:synchdisk.SectorSize],
			f.sd.ReadSector(f.hdr.ByteToSector(firstSector*synchdisk.SectorSize)))
	}
	if !lastAligned {
		copy(buf[(lastSector-firstSector)*synchdisk.SectorSize:],
			f.sd.ReadSector(f.hdr.ByteToSector(lastSector*synchdisk.SectorSize)))
	}

	copy(buf[position-firstSector*synchdisk.SectorSize:], p[:numBytes])

	for i := firstSector; i <= lastSector; i++ {
		sector := f.hdr.ByteToSector(i * synchdisk.SectorSize)
		f.sd.WriteSector(sector, buf[(i-firstSector)*synchdisk.SectorSize:(i-firstSector+1)*synchdisk.SectorSize])
	}
	return numBytes
}
