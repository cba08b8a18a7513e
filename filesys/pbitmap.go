package filesys

import (
	"github.com/mit-pdos/go-nachos/bitmap"
)

// PersistBitmap is a bitmap that can be fetched from and stored to a file;
// the filesystem keeps the free-sector map in one.
type PersistBitmap struct {
	*bitmap.Bitmap
}

func NewPersistBitmap(numItems int) *PersistBitmap {
	return &PersistBitmap{Bitmap: bitmap.New(numItems)}
}

func (b *PersistBitmap) FetchFrom(file *OpenFile) {
	data := b.Bytes()
	buf := make([]byte, len(data))
	file.ReadAt(buf, 0)
	copy(data, buf)
}

func (b *PersistBitmap) WriteBack(file *OpenFile) {
	file.WriteAt(b.Bytes(), 0)
}
