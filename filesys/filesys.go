package filesys

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-nachos/bitmap"
	"github.com/mit-pdos/go-nachos/synchdisk"
	"github.com/mit-pdos/go-nachos/util"
)

const (
	FreeMapSector   = 0
	DirectorySector = 1

	FreeMapFileSize = synchdisk.NumSectors / bitmap.BitsInByte

	PathMaxLen = 255
)

// FileSystem implements the hierarchical filesystem over the synchronous
// disk. The free-map and root-directory files stay open for the kernel's
// lifetime; every operation fetches their current contents, mutates, and
// flushes.
type FileSystem struct {
	sd *synchdisk.SynchDisk

	freeMapFile   *OpenFile
	directoryFile *OpenFile

	out io.Writer
}

// New mounts the filesystem, formatting the disk first when asked.
// Formatting lays down the free map and an empty root directory at their
// well-known sectors.
func New(sd *synchdisk.SynchDisk, format bool) *FileSystem {
	fs := &FileSystem{sd: sd, out: os.Stdout}
	if format {
		util.DPrintf(1, "filesys: formatting the disk")
		freeMap := NewPersistBitmap(synchdisk.NumSectors)
		directory := NewDirectory(NumDirEntries)
		mapHdr := NewFileHeader()
		dirHdr := NewFileHeader()

		freeMap.Mark(FreeMapSector)
		freeMap.Mark(DirectorySector)

		if !mapHdr.Allocate(freeMap.Bitmap, FreeMapFileSize) {
			panic("filesys: no space for the free map")
		}
		if !dirHdr.Allocate(freeMap.Bitmap, DirectoryFileSize) {
			panic("filesys: no space for the root directory")
		}

		// Headers must hit the disk before the files can be opened: Open
		// reads the header sector, and a fresh disk holds garbage.
		mapHdr.WriteBack(sd, FreeMapSector)
		dirHdr.WriteBack(sd, DirectorySector)

		fs.freeMapFile = NewOpenFile(sd, FreeMapSector)
		fs.directoryFile = NewOpenFile(sd, DirectorySector)

		freeMap.WriteBack(fs.freeMapFile)
		directory.WriteBack(fs.directoryFile)
	} else {
		fs.freeMapFile = NewOpenFile(sd, FreeMapSector)
		fs.directoryFile = NewOpenFile(sd, DirectorySector)
	}
	return fs
}

// SetOutput redirects List/Print output (default os.Stdout).
func (fs *FileSystem) SetOutput(w io.Writer) {
	fs.out = w
}

// Create makes a file (or directory) at an absolute path whose parent
// already exists. Directories get DirectoryFileSize bytes regardless of
// initialSize. False on a bad path, duplicate name, or disk exhaustion;
// sectors taken during a failed attempt are rolled back.
func (fs *FileSystem) Create(path string, initialSize int, isDir bool) bool {
	util.DPrintf(1, "filesys: creating %q size %d dir %v", path, initialSize, isDir)
	if isDir {
		initialSize = DirectoryFileSize
	}

	parentFile := fs.findSubDirectory(path)
	if parentFile == nil {
		return false
	}
	name := lastElementOfPath(path)
	if name == "" || len(name) > FileNameMaxLen {
		return false
	}

	directory := NewDirectory(NumDirEntries)
	directory.FetchFrom(parentFile)
	if directory.Find(name) != -1 {
		return false
	}

	freeMap := NewPersistBitmap(synchdisk.NumSectors)
	freeMap.FetchFrom(fs.freeMapFile)
	sector := freeMap.FindAndSet()
	if sector == -1 {
		return false
	}
	if !directory.Add(name, sector, isDir) {
		freeMap.Clear(sector)
		return false
	}
	hdr := NewFileHeader()
	if !hdr.Allocate(freeMap.Bitmap, initialSize) {
		hdr.Deallocate(freeMap.Bitmap)
		freeMap.Clear(sector)
		directory.Remove(name)
		return false
	}

	hdr.WriteBack(fs.sd, sector)
	directory.WriteBack(parentFile)
	freeMap.WriteBack(fs.freeMapFile)
	return true
}

// Open returns a handle on the file at path, or nil if it does not exist or
// names a directory.
func (fs *FileSystem) Open(path string) *OpenFile {
	util.DPrintf(1, "filesys: opening %q", path)
	parentFile := fs.findSubDirectory(path)
	if parentFile == nil {
		return nil
	}
	directory := NewDirectory(NumDirEntries)
	directory.FetchFrom(parentFile)
	name := lastElementOfPath(path)
	sector := directory.Find(name)
	if sector < 0 || directory.IsDir(name) {
		return nil
	}
	return NewOpenFile(fs.sd, sector)
}

// Remove deletes the file at path, returning its sectors to the free map.
// Directories are rejected (no recursive delete).
func (fs *FileSystem) Remove(path string) bool {
	util.DPrintf(1, "filesys: removing %q", path)
	parentFile := fs.findSubDirectory(path)
	if parentFile == nil {
		return false
	}
	directory := NewDirectory(NumDirEntries)
	directory.FetchFrom(parentFile)
	name := lastElementOfPath(path)
	sector := directory.Find(name)
	if sector == -1 || directory.IsDir(name) {
		return false
	}

	fileHdr := NewFileHeader()
	fileHdr.FetchFrom(fs.sd, sector)

	freeMap := NewPersistBitmap(synchdisk.NumSectors)
	freeMap.FetchFrom(fs.freeMapFile)

	fileHdr.Deallocate(freeMap.Bitmap)
	freeMap.Clear(sector)
	directory.Remove(name)

	directory.WriteBack(parentFile)
	freeMap.WriteBack(fs.freeMapFile)
	return true
}

// List prints a directory's contents, or "FILE name" when path names a
// file.
func (fs *FileSystem) List(path string) {
	util.DPrintf(1, "filesys: listing %q", path)
	sector := -1
	if path == "/" {
		sector = DirectorySector
	} else {
		parentFile := fs.findSubDirectory(path)
		if parentFile == nil {
			return
		}
		directory := NewDirectory(NumDirEntries)
		directory.FetchFrom(parentFile)
		name := lastElementOfPath(path)
		sector = directory.Find(name)
		if sector != -1 && !directory.IsDir(name) {
			fmt.Fprintf(fs.out, "FILE %s\n", name)
			sector = -1
		}
	}
	if sector != -1 {
		directory := NewDirectory(NumDirEntries)
		directory.FetchFrom(NewOpenFile(fs.sd, sector))
		directory.List(fs.out)
	}
}

// Print dumps the whole filesystem: both well-known headers, the free map,
// and the root directory.
func (fs *FileSystem) Print() {
	bitHdr := NewFileHeader()
	dirHdr := NewFileHeader()
	freeMap := NewPersistBitmap(synchdisk.NumSectors)
	directory := NewDirectory(NumDirEntries)

	fmt.Fprintf(fs.out, "Bit map file header:\n")
	bitHdr.FetchFrom(fs.sd, FreeMapSector)
	bitHdr.Print(fs.out, fs.sd)

	fmt.Fprintf(fs.out, "Directory file header:\n")
	dirHdr.FetchFrom(fs.sd, DirectorySector)
	dirHdr.Print(fs.out, fs.sd)

	freeMap.FetchFrom(fs.freeMapFile)
	freeMap.Print(fs.out)

	directory.FetchFrom(fs.directoryFile)
	directory.Print(fs.out)
}

// PrintFile dumps one file's header and contents.
func (fs *FileSystem) PrintFile(path string) {
	util.DPrintf(1, "filesys: printing %q", path)
	parentFile := fs.findSubDirectory(path)
	if parentFile == nil {
		return
	}
	directory := NewDirectory(NumDirEntries)
	directory.FetchFrom(parentFile)
	name := lastElementOfPath(path)
	sector := directory.Find(name)
	if sector != -1 && !directory.IsDir(name) {
		hdr := NewFileHeader()
		hdr.FetchFrom(fs.sd, sector)
		hdr.Print(fs.out, fs.sd)
	}
}

// Put imports a host file at nachosPath.
func (fs *FileSystem) Put(localPath string, nachosPath string) bool {
	return fs.Copy(localPath, nachosPath)
}

// Copy reads a host file and writes its bytes into a freshly created file.
func (fs *FileSystem) Copy(localPath string, nachosPath string) bool {
	fd, err := unix.Open(localPath, unix.O_RDONLY, 0)
	if err != nil {
		util.DPrintf(1, "filesys: cannot open host file %q: %v", localPath, err)
		return false
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false
	}
	size := int(st.Size)

	if !fs.Create(nachosPath, size, false) {
		util.DPrintf(1, "filesys: cannot create %q (%d bytes)", nachosPath, size)
		return false
	}
	file := fs.Open(nachosPath)
	if file == nil {
		return false
	}

	buf := make([]byte, synchdisk.SectorSize)
	for {
		n, err := unix.Read(fd, buf)
		if err != nil || n <= 0 {
			break
		}
		file.Write(buf[:n])
	}
	return true
}

// findSubDirectory resolves path's parent directory, walking absolute
// slash-separated components from the root. Returns nil when an intermediate
// component is missing or is not a directory.
func (fs *FileSystem) findSubDirectory(path string) *OpenFile {
	if len(path) > PathMaxLen {
		return nil
	}
	parts := splitPath(path)
	cur := NewOpenFile(fs.sd, DirectorySector)
	directory := NewDirectory(NumDirEntries)
	for i := 0; i+1 < len(parts); i++ {
		directory.FetchFrom(cur)
		sector := directory.Find(parts[i])
		if sector == -1 || !directory.IsDir(parts[i]) {
			return nil
		}
		cur = NewOpenFile(fs.sd, sector)
	}
	return cur
}

// lastElementOfPath returns the final path component ("" for the root).
func lastElementOfPath(path string) string {
	parts := splitPath(path)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
