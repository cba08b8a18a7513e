package filesys

import (
	"fmt"
	"io"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-nachos/util"
)

const (
	// FileNameMaxLen bounds one path component; names are stored
	// NUL-padded in a fixed field.
	FileNameMaxLen = 9

	NumDirEntries = 64

	// inUse | isDir | sector | name[FileNameMaxLen+1]
	dirEntrySize = 3*4 + FileNameMaxLen + 1

	DirectoryFileSize = dirEntrySize * NumDirEntries
)

// DirectoryEntry names one file or subdirectory and points at its header
// sector.
type DirectoryEntry struct {
	InUse  bool
	IsDir  bool
	Sector int32
	Name   string
}

// Directory is a fixed-size table of entries, stored on disk as an ordinary
// file.
type Directory struct {
	table []DirectoryEntry
}

func NewDirectory(size int) *Directory {
	return &Directory{table: make([]DirectoryEntry, size)}
}

// FetchFrom reads the directory's table from its file.
func (d *Directory) FetchFrom(file *OpenFile) {
	buf := make([]byte, dirEntrySize*len(d.table))
	file.ReadAt(buf, 0)
	dec := marshal.NewDec(buf)
	for i := range d.table {
		d.table[i].InUse = dec.GetInt32() != 0
		d.table[i].IsDir = dec.GetInt32() != 0
		d.table[i].Sector = int32(dec.GetInt32())
		name := dec.GetBytes(FileNameMaxLen + 1)
		d.table[i].Name = nameFromField(name)
	}
}

// WriteBack flushes the table to the directory's file.
func (d *Directory) WriteBack(file *OpenFile) {
	enc := marshal.NewEnc(uint64(dirEntrySize * len(d.table)))
	for i := range d.table {
		enc.PutInt32(boolWord(d.table[i].InUse))
		enc.PutInt32(boolWord(d.table[i].IsDir))
		enc.PutInt32(uint32(d.table[i].Sector))
		field := make([]byte, FileNameMaxLen+1)
		copy(field, d.table[i].Name)
		enc.PutBytes(field)
	}
	file.WriteAt(enc.Finish(), 0)
}

// Find returns the header sector for name, or -1.
func (d *Directory) Find(name string) int {
	i := d.findIndex(name)
	if i == -1 {
		return -1
	}
	return int(d.table[i].Sector)
}

// IsDir reports whether name exists and is a subdirectory.
func (d *Directory) IsDir(name string) bool {
	i := d.findIndex(name)
	return i != -1 && d.table[i].IsDir
}

// Add records name at the given header sector; false if the name is already
// present or the table is full.
func (d *Directory) Add(name string, newSector int, isDir bool) bool {
	if d.findIndex(name) != -1 {
		return false
	}
	for i := range d.table {
		if !d.table[i].InUse {
			d.table[i] = DirectoryEntry{
				InUse:  true,
				IsDir:  isDir,
				Sector: int32(newSector),
				Name:   name,
			}
			util.DPrintf(2, "filesys: directory entry %q -> sector %d", name, newSector)
			return true
		}
	}
	return false
}

// Remove frees name's slot; false if absent.
func (d *Directory) Remove(name string) bool {
	i := d.findIndex(name)
	if i == -1 {
		return false
	}
	d.table[i] = DirectoryEntry{}
	return true
}

// List prints the names of everything in the directory.
func (d *Directory) List(w io.Writer) {
	for i := range d.table {
		if d.table[i].InUse {
			if d.table[i].IsDir {
				fmt.Fprintf(w, "DIR  %s\n", d.table[i].Name)
			} else {
				fmt.Fprintf(w, "FILE %s\n", d.table[i].Name)
			}
		}
	}
}

// Print dumps entries with their sectors, for debugging.
func (d *Directory) Print(w io.Writer) {
	fmt.Fprintf(w, "Directory contents:\n")
	for i := range d.table {
		if d.table[i].InUse {
			fmt.Fprintf(w, "Name: %s, Sector: %d\n", d.table[i].Name, d.table[i].Sector)
		}
	}
	fmt.Fprintf(w, "\n")
}

func (d *Directory) findIndex(name string) int {
	if name == "" {
		return -1
	}
	for i := range d.table {
		if d.table[i].InUse && d.table[i].Name == name {
			return i
		}
	}
	return -1
}

func nameFromField(field []byte) string {
	for i, b := range field {
		if b == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
