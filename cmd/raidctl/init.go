package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bpfs/raidsim/disk"
	"github.com/bpfs/raidsim/raidconfig"
)

func newInitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create and format the backing files for a new volume",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := raidconfig.Load(*configPath)
			if err != nil {
				return usageErr(err)
			}

			fs := afero.NewOsFs()
			blocksPerDisk := uint64(cfg.DiskCapacity) / uint64(cfg.StripeUnitSize)
			params := cfg.Params().Encode()

			for i, entry := range cfg.Disks {
				if err := createEmpty(fs, entry.Path, int64(cfg.StripeUnitSize)); err != nil {
					return fatalErr(errors.Wrapf(err, "disk %d (%s)", i, entry.Path))
				}
				d, err := disk.Initialize(fs, entry.Path, uint32(i), uint32(cfg.StripeUnitSize), blocksPerDisk, raidconfig.EncodedParamsSize)
				if err != nil {
					return fatalErr(errors.Wrapf(err, "disk %d (%s)", i, entry.Path))
				}
				if err := d.ResetDisk(); err != nil {
					return fatalErr(errors.Wrapf(err, "disk %d (%s): format", i, entry.Path))
				}
				if err := d.SetArrayData(params); err != nil {
					return fatalErr(errors.Wrapf(err, "disk %d (%s): write array config", i, entry.Path))
				}
				if err := d.Close(); err != nil {
					return fatalErr(err)
				}
				log.WithField("disk", i).WithField("path", entry.Path).Info("raidctl: formatted")
			}
			return nil
		},
	}
}

// createEmpty creates path if it does not already exist, so the
// subsequent disk.Initialize (which only opens, never creates) has
// something to open.
func createEmpty(fs afero.Fs, path string, minSize int64) error {
	if exists, err := afero.Exists(fs, path); err == nil && exists {
		return nil
	}
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}
