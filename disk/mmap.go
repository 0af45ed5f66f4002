package disk

// mmapRegion is a memory-mapped view of a disk's payload region. Reads
// and writes go straight through the mapping instead of a ReadAt/WriteAt
// syscall per call. A nil mmapRegion means mmap isn't applicable — the
// backing file isn't a real OS file (afero.NewMemMapFs in tests) or the
// platform has no mmap support — and ReadBlocks/WriteBlocks fall back to
// plain afero.File I/O, which is always correct.
type mmapRegion interface {
	readAt(dst []byte, off int64) error
	writeAt(src []byte, off int64) error
	close() error
}

// mapPayload (re)establishes d.payload over d.f's payload region, closing
// any existing mapping first. Mapping failures are swallowed: mmap is a
// throughput optimization for the real-disk backend, not a correctness
// requirement, and every caller already has a working ReadAt/WriteAt path.
func (d *Disk) mapPayload() {
	if d.payload != nil {
		d.payload.close()
		d.payload = nil
	}
	size := int64(d.numBlocks) * int64(d.blockSize)
	region, err := tryMmap(d.f, d.payloadOff, size)
	if err != nil || region == nil {
		d.payload = nil
		return
	}
	d.payload = region
}
