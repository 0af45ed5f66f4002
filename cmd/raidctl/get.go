package main

import (
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// newGetCmd implements the get scenario: read back the fileHeader
// stored by store, validate its internal checksum, read the payload it
// describes, and verify the payload's own CRC32 before writing it out.
func newGetCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <file>",
		Short: "Extract the file stored on the array, validating its checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vol, err := openVolume(afero.NewOsFs(), *configPath)
			if err != nil {
				return err
			}
			if err := vol.Mount(true); err != nil {
				return fatalErr(err)
			}
			defer vol.Unmount(time.Now().Unix())

			headerBuf := make([]byte, fileHeaderSize)
			if err := vol.ReadAt(0, headerBuf); err != nil {
				return fatalErr(err)
			}
			header, err := decodeFileHeader(headerBuf)
			if err != nil {
				return fatalErr(err)
			}
			if !header.valid() {
				return mismatchErr(errors.New("raidctl: invalid file header"))
			}

			data := make([]byte, header.Size)
			start := time.Now()
			if err := vol.ReadAt(int64(fileHeaderSize), data); err != nil {
				return fatalErr(err)
			}
			elapsed := time.Since(start)

			if crc32.ChecksumIEEE(data) != header.CRC32 {
				return mismatchErr(errors.New("raidctl: file checksum mismatch"))
			}

			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return fatalErr(errors.Wrapf(err, "raidctl: write %s", args[0]))
			}

			log.WithField("bytes", header.Size).WithField("crc32", header.CRC32).Info("raidctl: file extracted")
			fmt.Printf("get: %d bytes in %s (%.2f MB/s)\n", header.Size, elapsed, mbPerSec(header.Size, elapsed))
			return nil
		},
	}
	return cmd
}
