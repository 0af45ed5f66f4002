package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// newStoreCmd implements the store scenario: read a file whole, prefix
// it with a fileHeader (size, CRC32, size^CRC32), and write header plus
// payload sequentially starting at the beginning of the array.
func newStoreCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store <file>",
		Short: "Store a file on the array, prefixed by a size/CRC32 header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return usageErr(errors.Wrapf(err, "raidctl: read %s", args[0]))
			}

			vol, err := openVolume(afero.NewOsFs(), *configPath)
			if err != nil {
				return err
			}
			if err := vol.Mount(false); err != nil {
				return fatalErr(err)
			}
			defer vol.Unmount(time.Now().Unix())

			header := newFileHeader(data)
			if int64(fileHeaderSize)+header.Size > vol.Capacity() {
				return usageErr(errors.Errorf("raidctl: file too large for array capacity"))
			}
			if err := vol.WriteAt(0, header.encode()); err != nil {
				return fatalErr(err)
			}

			start := time.Now()
			if err := vol.WriteAt(int64(fileHeaderSize), data); err != nil {
				return fatalErr(err)
			}
			elapsed := time.Since(start)

			log.WithField("bytes", len(data)).WithField("crc32", header.CRC32).Info("raidctl: file stored")
			fmt.Printf("store: %d bytes in %s (%.2f MB/s)\n", len(data), elapsed, mbPerSec(int64(len(data)), elapsed))
			return nil
		},
	}
	return cmd
}
