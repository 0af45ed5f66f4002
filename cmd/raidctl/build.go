package main

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/bpfs/raidsim/codec"
	"github.com/bpfs/raidsim/disk"
	"github.com/bpfs/raidsim/raidconfig"
	"github.com/bpfs/raidsim/rangelock"
	"github.com/bpfs/raidsim/volume"
)

// openVolume loads configPath, opens (but does not mount) every
// configured disk file on fs, builds the matching codec engine, and
// wires them into a volume.Volume.
func openVolume(fs afero.Fs, configPath string) (*volume.Volume, error) {
	cfg, err := raidconfig.Load(configPath)
	if err != nil {
		return nil, usageErr(err)
	}

	locker, err := rangelock.New(cfg.MaxConcurrentThreads)
	if err != nil {
		return nil, usageErr(err)
	}

	blocksPerDisk := uint64(cfg.DiskCapacity) / uint64(cfg.StripeUnitSize)
	params := cfg.Params().Encode()
	disks := make([]*disk.Disk, len(cfg.Disks))
	for i, entry := range cfg.Disks {
		d, err := disk.Initialize(fs, entry.Path, uint32(i), uint32(cfg.StripeUnitSize), blocksPerDisk, raidconfig.EncodedParamsSize)
		if err != nil {
			return nil, fatalErr(errors.Wrapf(err, "disk %d (%s)", i, entry.Path))
		}
		if d.State() != disk.StateInvalid && !bytes.Equal(d.GetArrayData(), params) {
			log.WithField("disk", i).Warn("raidctl: stored array configuration does not match, marking invalid")
			d.ForceInvalid()
		}
		disks[i] = d
	}

	io := &diskIOAdapter{disks: disks}
	var engine codec.Engine
	switch cfg.Type {
	case raidconfig.TypeRAID5:
		engine, err = codec.NewRAID5(io, cfg.Dimension, cfg.StripeUnitSize, cfg.InterleavingOrder, cfg.MaxConcurrentThreads)
	case raidconfig.TypeReedSolomon:
		engine, err = codec.NewReedSolomon(io, cfg.Dimension, cfg.Redundancy, cfg.StripeUnitSize, cfg.InterleavingOrder, cfg.MaxConcurrentThreads)
	default:
		return nil, usageErr(fmt.Errorf("raidctl: unknown RAID type %q", cfg.Type))
	}
	if err != nil {
		return nil, usageErr(err)
	}

	vol, err := volume.Open(disks, engine, locker, log)
	if err != nil {
		return nil, fatalErr(err)
	}
	return vol, nil
}

// diskIOAdapter is the codec engine's long-lived view of the member
// disks, built once at open time and shared by the engine and the
// volume.Volume facade over the same *disk.Disk instances so both
// layers observe the same online/offline state.
type diskIOAdapter struct {
	disks []*disk.Disk
}

func (a *diskIOAdapter) NumDisks() int { return len(a.disks) }
func (a *diskIOAdapter) IsOnline(id int) bool {
	return a.disks[id].State() == disk.StateOnline
}
func (a *diskIOAdapter) ReadBlocks(id int, stripeUnitID uint64, n int, dst []byte) error {
	return a.disks[id].ReadBlocks(stripeUnitID, n, dst)
}
func (a *diskIOAdapter) WriteBlocks(id int, stripeUnitID uint64, n int, src []byte) error {
	return a.disks[id].WriteBlocks(stripeUnitID, n, src)
}
