package codec

// memDisk is an in-memory stripe-unit store used by the codec package's
// own tests, standing in for package disk's file-backed implementation
// so encode/decode/update logic can be exercised without touching the
// filesystem.
type memDisk struct {
	online     bool
	unitSize   int
	units      [][]byte
}

func newMemDisk(unitSize, numUnits int) *memDisk {
	d := &memDisk{online: true, unitSize: unitSize, units: make([][]byte, numUnits)}
	for i := range d.units {
		d.units[i] = make([]byte, unitSize)
	}
	return d
}

// memDiskIO implements DiskIO over a fixed slice of memDisk, growing
// each disk's unit store on demand so tests don't need to precompute
// exactly how many stripe units a run will touch.
type memDiskIO struct {
	disks []*memDisk
}

func newMemDiskIO(numDisks, unitSize, unitsPerDisk int) *memDiskIO {
	io := &memDiskIO{disks: make([]*memDisk, numDisks)}
	for i := range io.disks {
		io.disks[i] = newMemDisk(unitSize, unitsPerDisk)
	}
	return io
}

func (io *memDiskIO) NumDisks() int { return len(io.disks) }

func (io *memDiskIO) IsOnline(diskID int) bool { return io.disks[diskID].online }

func (io *memDiskIO) ReadBlocks(diskID int, stripeUnitID uint64, n int, dst []byte) error {
	d := io.disks[diskID]
	for i := 0; i < n; i++ {
		copy(dst[i*d.unitSize:(i+1)*d.unitSize], d.units[int(stripeUnitID)+i])
	}
	return nil
}

func (io *memDiskIO) WriteBlocks(diskID int, stripeUnitID uint64, n int, src []byte) error {
	d := io.disks[diskID]
	for i := 0; i < n; i++ {
		copy(d.units[int(stripeUnitID)+i], src[i*d.unitSize:(i+1)*d.unitSize])
	}
	return nil
}

func (io *memDiskIO) setOffline(diskID int) { io.disks[diskID].online = false }
func (io *memDiskIO) setOnline(diskID int)  { io.disks[diskID].online = true }
