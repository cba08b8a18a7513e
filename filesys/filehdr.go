// Package filesys implements the persistent hierarchical filesystem: chained
// file headers, fixed-size directories, a persistent free-sector map, and
// the operations over them. The on-disk layout is fixed: sector 0 holds the
// free-map file header and sector 1 the root directory's.
package filesys

import (
	"fmt"
	"io"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-nachos/bitmap"
	"github.com/mit-pdos/go-nachos/synchdisk"
	"github.com/mit-pdos/go-nachos/util"
)

const (
	// NumDirect is how many data sectors one header addresses: a sector
	// minus the three bookkeeping words, in sector numbers.
	NumDirect = (synchdisk.SectorSize - 3*4) / 4

	// MaxFileSize is the span of a single header's direct pointers. Larger
	// files chain additional headers through nextHeaderSector.
	MaxFileSize = NumDirect * synchdisk.SectorSize
)

// FileHeader describes where a file's bytes live on disk. On disk it is one
// sector: numBytes | numSectors | nextHeaderSector | dataSectors[NumDirect],
// all 32-bit words, nextHeaderSector -1 terminating the chain. In memory
// each header owns its successor.
type FileHeader struct {
	numBytes         int32
	numSectors       int32
	nextHeaderSector int32
	dataSectors      [NumDirect]int32

	nextHeader *FileHeader
}

func NewFileHeader() *FileHeader {
	h := &FileHeader{
		numBytes:         -1,
		numSectors:       -1,
		nextHeaderSector: -1,
	}
	return h
}

// Allocate grabs data sectors for a file of fileSize bytes, chaining a new
// header for the part beyond this header's direct span. Returns false if the
// free map runs out; the caller rolls back with Deallocate.
func (h *FileHeader) Allocate(freeMap *bitmap.Bitmap, fileSize int) bool {
	numTotalSectors := util.DivRoundUp(fileSize, synchdisk.SectorSize)
	numHere := numTotalSectors
	h.numBytes = int32(fileSize)
	if numTotalSectors > NumDirect {
		numHere = NumDirect
		h.numBytes = int32(MaxFileSize)
	}
	if freeMap.NumClear() < numHere {
		h.numSectors = 0
		return false
	}
	// numSectors tracks what has actually been grabbed, so a Deallocate
	// after a failed allocation frees exactly the right sectors.
	h.numSectors = 0
	for i := 0; i < numHere; i++ {
		s := freeMap.FindAndSet()
		if s == -1 {
			return false
		}
		h.dataSectors[i] = int32(s)
		h.numSectors = int32(i + 1)
	}
	if numTotalSectors > NumDirect {
		s := freeMap.FindAndSet()
		if s == -1 {
			return false
		}
		h.nextHeaderSector = int32(s)
		util.DPrintf(2, "filesys: chaining next file header at sector %d", s)
		h.nextHeader = NewFileHeader()
		return h.nextHeader.Allocate(freeMap, fileSize-MaxFileSize)
	}
	return true
}

// Deallocate returns every data sector along the chain to the free map,
// including the chained headers' own sectors.
func (h *FileHeader) Deallocate(freeMap *bitmap.Bitmap) {
	if h.nextHeader != nil {
		util.DPrintf(2, "filesys: deallocating chained header at sector %d", h.nextHeaderSector)
		h.nextHeader.Deallocate(freeMap)
		freeMap.Clear(int(h.nextHeaderSector))
	}
	for i := 0; i < int(h.numSectors); i++ {
		if !freeMap.Test(int(h.dataSectors[i])) {
			panic("filesys: deallocating a sector that is not marked in use")
		}
		freeMap.Clear(int(h.dataSectors[i]))
	}
}

// FetchFrom reads the whole header chain starting at sector. Iterative so
// arbitrarily long files cannot exhaust the stack.
func (h *FileHeader) FetchFrom(sd *synchdisk.SynchDisk, sector int) {
	hdr := h
	for {
		util.DPrintf(3, "filesys: fetching file header from sector %d", sector)
		dec := marshal.NewDec(sd.ReadSector(sector))
		hdr.numBytes = int32(dec.GetInt32())
		hdr.numSectors = int32(dec.GetInt32())
		hdr.nextHeaderSector = int32(dec.GetInt32())
		for i := 0; i < NumDirect; i++ {
			hdr.dataSectors[i] = int32(dec.GetInt32())
		}
		if hdr.nextHeaderSector == -1 {
			hdr.nextHeader = nil
			return
		}
		hdr.nextHeader = NewFileHeader()
		sector = int(hdr.nextHeaderSector)
		hdr = hdr.nextHeader
	}
}

// WriteBack flushes the whole chain, each header to its own sector.
func (h *FileHeader) WriteBack(sd *synchdisk.SynchDisk, sector int) {
	hdr := h
	for {
		util.DPrintf(3, "filesys: writing file header to sector %d", sector)
		enc := marshal.NewEnc(uint64(synchdisk.SectorSize))
		enc.PutInt32(uint32(hdr.numBytes))
		enc.PutInt32(uint32(hdr.numSectors))
		enc.PutInt32(uint32(hdr.nextHeaderSector))
		for i := 0; i < NumDirect; i++ {
			enc.PutInt32(uint32(hdr.dataSectors[i]))
		}
		sd.WriteSector(sector, enc.Finish())
		if hdr.nextHeader == nil {
			return
		}
		sector = int(hdr.nextHeaderSector)
		hdr = hdr.nextHeader
	}
}

// ByteToSector maps a byte offset to the disk sector holding it, descending
// the chain in MaxFileSize strides.
func (h *FileHeader) ByteToSector(offset int) int {
	hdr := h
	for offset >= MaxFileSize {
		hdr = hdr.nextHeader
		offset -= MaxFileSize
	}
	return int(hdr.dataSectors[offset/synchdisk.SectorSize])
}

// FileLength is the file's size in bytes, summed along the chain.
func (h *FileHeader) FileLength() int {
	n := 0
	for hdr := h; hdr != nil; hdr = hdr.nextHeader {
		n += int(hdr.numBytes)
	}
	return n
}

// NumHeaders counts headers on the chain.
func (h *FileHeader) NumHeaders() int {
	n := 0
	for hdr := h; hdr != nil; hdr = hdr.nextHeader {
		n++
	}
	return n
}

// Print dumps the header and file contents, rendering printable bytes
// directly.
func (h *FileHeader) Print(w io.Writer, sd *synchdisk.SynchDisk) {
	for hdr := h; hdr != nil; hdr = hdr.nextHeader {
		fmt.Fprintf(w, "FileHeader contents.  File size: %d.  File blocks:\n", hdr.numBytes)
		for i := 0; i < int(hdr.numSectors); i++ {
			fmt.Fprintf(w, "%d ", hdr.dataSectors[i])
		}
		fmt.Fprintf(w, "\nFile contents:\n")
		k := 0
		for i := 0; i < int(hdr.numSectors); i++ {
			data := sd.ReadSector(int(hdr.dataSectors[i]))
			for j := 0; j < synchdisk.SectorSize && k < int(hdr.numBytes); j, k = j+1, k+1 {
				if data[j] >= 0x20 && data[j] <= 0x7e {
					fmt.Fprintf(w, "%c", data[j])
				} else {
					fmt.Fprintf(w, "\\%x", data[j])
				}
			}
			fmt.Fprintf(w, "\n")
		}
	}
}
