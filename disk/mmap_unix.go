//go:build unix

package disk

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/spf13/afero"
)

type unixMmapRegion struct {
	data []byte
	pad  int64 // bytes between the page-aligned mapping start and off
}

// tryMmap maps f's [off, off+size) region for shared read/write access.
// It only applies to afero.OsFs-backed files (afero.MemMapFs, used in
// tests, has no file descriptor to map); any other case returns a nil
// region so the caller falls back to ReadAt/WriteAt.
func tryMmap(f afero.File, off, size int64) (mmapRegion, error) {
	osFile, ok := f.(*os.File)
	if !ok || size <= 0 {
		return nil, nil
	}
	pageSize := int64(os.Getpagesize())
	pageOff := off &^ (pageSize - 1)
	pad := off - pageOff

	data, err := unix.Mmap(int(osFile.Fd()), pageOff, int(size+pad), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil
	}
	return &unixMmapRegion{data: data, pad: pad}, nil
}

func (r *unixMmapRegion) readAt(dst []byte, off int64) error {
	start := r.pad + off
	copy(dst, r.data[start:start+int64(len(dst))])
	return nil
}

func (r *unixMmapRegion) writeAt(src []byte, off int64) error {
	start := r.pad + off
	copy(r.data[start:start+int64(len(src))], src)
	return nil
}

func (r *unixMmapRegion) close() error {
	return unix.Munmap(r.data)
}
