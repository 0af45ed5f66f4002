// Package disk implements the file-emulated block device that backs one
// physical "disk" of a volume: a fixed-size file holding a header, an
// array-configuration blob, and a payload region addressed in fixed-size
// blocks. It is deliberately a thin external collaborator rather than
// part of the erasure-coding engine: the codec and volume packages only
// ever see it through the small read/write/state surface below.
package disk

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// State is the disk's availability as seen by the array.
type State int

const (
	// StateInvalid means the disk's header or stored array configuration
	// does not match what the array expects, or the file has never been
	// initialized (reset) at all.
	StateInvalid State = iota
	// StateOffline means the disk is a valid, known member of the array
	// but is not currently mounted for I/O.
	StateOffline
	// StateOnline means the disk is mounted and serving reads/writes.
	StateOnline
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateOffline:
		return "offline"
	case StateOnline:
		return "online"
	default:
		return "unknown"
	}
}

// MountMode is the per-disk mount state machine.
type MountMode int

const (
	Unmounted MountMode = iota
	ReadOnly
	ReadWrite
)

// Disk is one file-backed block device.
type Disk struct {
	mu sync.Mutex

	fs   afero.Fs
	path string
	f    afero.File

	id           uint32
	blockSize    uint32
	numBlocks    uint64
	arrayCfgSize uint32
	payloadOff   int64

	state       State
	mountMode   MountMode
	lastUnmount int64
	arrayData   []byte
	payload     mmapRegion

	log *logrus.Logger
}

// Option configures a Disk at Initialize time.
type Option func(*Disk)

// WithLogger overrides the logger used for state-transition logging.
func WithLogger(l *logrus.Logger) Option {
	return func(d *Disk) { d.log = l }
}

// Initialize opens path (which must already exist) on fs, validates its
// header against the expected geometry, and returns the disk in its
// on-disk state: Offline if the header is consistent and Valid, Invalid
// otherwise. It never mounts the disk; call Mount to do that.
func Initialize(fs afero.Fs, path string, diskID uint32, blockSize uint32, numBlocks uint64, arrayCfgSize uint32, opts ...Option) (*Disk, error) {
	d := &Disk{
		fs:           fs,
		path:         path,
		id:           diskID,
		blockSize:    blockSize,
		numBlocks:    numBlocks,
		arrayCfgSize: arrayCfgSize,
		payloadOff:   payloadOffset(blockSize, arrayCfgSize),
		log:          logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(d)
	}

	f, err := fs.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "disk %d: open %s", diskID, path)
	}
	d.f = f

	hdrBuf := make([]byte, headerSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, headerSize), hdrBuf); err != nil {
		d.state = StateInvalid
		d.log.WithField("disk", diskID).Warn("disk: unreadable header, marking invalid")
		return d, nil
	}
	h, err := decodeHeader(hdrBuf)
	if err != nil {
		d.state = StateInvalid
		d.log.WithField("disk", diskID).WithError(err).Warn("disk: bad header, marking invalid")
		return d, nil
	}
	if h.DiskID != diskID || h.BlockSize != blockSize || h.NumBlocks != numBlocks || h.ArrayCfgSize != arrayCfgSize {
		d.state = StateInvalid
		d.log.WithField("disk", diskID).Warn("disk: geometry mismatch, marking invalid")
		return d, nil
	}

	cfg := make([]byte, arrayCfgSize)
	if arrayCfgSize > 0 {
		if _, err := io.ReadFull(io.NewSectionReader(f, headerSize, int64(arrayCfgSize)), cfg); err != nil {
			d.state = StateInvalid
			return d, nil
		}
	}
	d.arrayData = cfg
	d.lastUnmount = h.LastUnmount

	if h.Valid != 0 {
		d.state = StateOffline
		d.mapPayload()
	} else {
		d.state = StateInvalid
	}
	return d, nil
}

// ResetDisk truncates and recreates the backing file as
// payloadOffset + numBlocks*blockSize zeroed bytes, writes a fresh valid
// header, and transitions the disk to Offline (ready to Mount).
func (d *Disk) ResetDisk() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := d.payloadOff + int64(d.numBlocks)*int64(d.blockSize)
	if err := d.f.Truncate(0); err != nil {
		return errors.Wrap(err, "disk: truncate")
	}
	if err := d.f.Truncate(size); err != nil {
		return errors.Wrap(err, "disk: grow")
	}

	h := header{
		Magic:        magic,
		Version:      headerVersion,
		DiskID:       d.id,
		BlockSize:    d.blockSize,
		NumBlocks:    d.numBlocks,
		ArrayCfgSize: d.arrayCfgSize,
		Valid:        1,
		LastUnmount:  0,
	}
	if _, err := d.f.WriteAt(h.encode(), 0); err != nil {
		return errors.Wrap(err, "disk: write header")
	}
	d.arrayData = make([]byte, d.arrayCfgSize)
	d.lastUnmount = 0
	d.state = StateOffline
	d.mapPayload()
	return nil
}

// SetArrayData stores the codec's parameter record into this disk's
// array-configuration slot and persists it immediately.
func (d *Disk) SetArrayData(b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if uint32(len(b)) > d.arrayCfgSize {
		return errors.Errorf("disk: array data too large (%d > %d)", len(b), d.arrayCfgSize)
	}
	buf := make([]byte, d.arrayCfgSize)
	copy(buf, b)
	if _, err := d.f.WriteAt(buf, headerSize); err != nil {
		return errors.Wrap(err, "disk: write array data")
	}
	d.arrayData = buf
	return nil
}

// GetArrayData returns the stored array-configuration blob.
func (d *Disk) GetArrayData() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.arrayData))
	copy(out, d.arrayData)
	return out
}

// Mount transitions the disk into ReadOnly or ReadWrite mode. Only a
// disk in StateOnline-eligible condition (Offline, with a valid header)
// may be mounted; ResetErasures-driven state derivation in package
// volume is responsible for deciding, array-wide, whether mounting
// should even be attempted.
func (d *Disk) Mount(write bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateOffline {
		return errors.Errorf("disk %d: cannot mount from state %s", d.id, d.state)
	}
	d.state = StateOnline
	if write {
		d.mountMode = ReadWrite
	} else {
		d.mountMode = ReadOnly
	}
	return nil
}

// Unmount records ts as this disk's last-clean-unmount timestamp and
// returns it to Offline.
func (d *Disk) Unmount(ts int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateOnline {
		return nil
	}
	h := header{
		Magic:        magic,
		Version:      headerVersion,
		DiskID:       d.id,
		BlockSize:    d.blockSize,
		NumBlocks:    d.numBlocks,
		ArrayCfgSize: d.arrayCfgSize,
		Valid:        1,
		LastUnmount:  ts,
	}
	if _, err := d.f.WriteAt(h.encode(), 0); err != nil {
		return errors.Wrap(err, "disk: write header on unmount")
	}
	d.lastUnmount = ts
	d.state = StateOffline
	d.mountMode = Unmounted
	return nil
}

// ReadBlocks reads n blocks starting at blockID into dst, which must be
// at least n*BlockSize() bytes.
func (d *Disk) ReadBlocks(blockID uint64, n int, dst []byte) error {
	d.mu.Lock()
	f, payload, online := d.f, d.payload, d.state == StateOnline
	d.mu.Unlock()
	if !online {
		return errors.Errorf("disk %d: not online", d.id)
	}
	relOff := int64(blockID) * int64(d.blockSize)
	need := n * int(d.blockSize)

	var err error
	if payload != nil {
		err = payload.readAt(dst[:need], relOff)
	} else {
		_, err = io.ReadFull(io.NewSectionReader(f, d.payloadOff+relOff, int64(need)), dst[:need])
	}
	if err != nil {
		d.markInvalid(err)
		return errors.Wrapf(err, "disk %d: read blocks", d.id)
	}
	return nil
}

// WriteBlocks writes n blocks starting at blockID from src.
func (d *Disk) WriteBlocks(blockID uint64, n int, src []byte) error {
	d.mu.Lock()
	f, payload, online := d.f, d.payload, d.state == StateOnline && d.mountMode == ReadWrite
	d.mu.Unlock()
	if !online {
		return errors.Errorf("disk %d: not writable", d.id)
	}
	relOff := int64(blockID) * int64(d.blockSize)
	need := n * int(d.blockSize)

	var err error
	if payload != nil {
		err = payload.writeAt(src[:need], relOff)
	} else {
		_, err = f.WriteAt(src[:need], d.payloadOff+relOff)
	}
	if err != nil {
		d.markInvalid(err)
		return errors.Wrapf(err, "disk %d: write blocks", d.id)
	}
	return nil
}

// markInvalid transitions the disk to Invalid after an I/O fault. The
// triggering operation still fails; the caller is responsible for
// unmounting/remounting the array to rebuild erasures.
func (d *Disk) markInvalid(cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateInvalid
	d.mountMode = Unmounted
	d.log.WithField("disk", d.id).WithError(cause).Error("disk: I/O fault, marking invalid")
}

// State reports the disk's current availability.
func (d *Disk) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// ID returns the disk's configured position in the array.
func (d *Disk) ID() uint32 { return d.id }

// BlockSize returns the fixed block size this disk was initialized with.
func (d *Disk) BlockSize() uint32 { return d.blockSize }

// NumBlocks returns the number of payload blocks this disk was
// initialized with.
func (d *Disk) NumBlocks() uint64 { return d.numBlocks }

// LastUnmount returns the timestamp recorded at this disk's last clean
// unmount (0 if it has never been cleanly unmounted).
func (d *Disk) LastUnmount() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastUnmount
}

// ForceInvalid marks the disk Invalid regardless of current state. The
// volume facade does not call it: neither volume.Open nor Volume.Mount
// compares last-unmount timestamps across disks, so a disk holding stale
// data is not detected at attach time.
func (d *Disk) ForceInvalid() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateInvalid
}

// Close releases the underlying file handle and any active mmap.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.payload != nil {
		d.payload.close()
		d.payload = nil
	}
	return d.f.Close()
}
