package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bpfs/raidsim/volume"
)

// benchResult accumulates one thread's I/O counters across the run.
type benchResult struct {
	bytesWritten uint64
	bytesRead    uint64
	ioCount      uint64
}

// newBenchCmd implements the concurrent mixed-workload benchmark
// scenario: ThreadCount goroutines each issue linear or random,
// aligned or unaligned read/write requests against the mounted volume
// for Duration seconds, splitting reads and writes by WriteRatio.
func newBenchCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench <l|r> <a|n> <write-ratio> <block-size> <threads> <duration-seconds>",
		Short: "Run a concurrent mixed read/write benchmark against the volume",
		Args:  cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			random, err := parseLR(args[0])
			if err != nil {
				return usageErr(err)
			}
			aligned, err := parseAN(args[1])
			if err != nil {
				return usageErr(err)
			}
			writeRatio, err := strconv.ParseFloat(args[2], 64)
			if err != nil || writeRatio < 0 || writeRatio > 1 {
				return usageErr(fmt.Errorf("raidctl: write-ratio must be a number in [0,1]"))
			}
			blockSize, err := strconv.Atoi(args[3])
			if err != nil || blockSize <= 0 {
				return usageErr(fmt.Errorf("raidctl: block-size must be a positive integer"))
			}
			threads, err := strconv.Atoi(args[4])
			if err != nil || threads <= 0 {
				return usageErr(fmt.Errorf("raidctl: threads must be a positive integer"))
			}
			durationSec, err := strconv.Atoi(args[5])
			if err != nil || durationSec <= 0 {
				return usageErr(fmt.Errorf("raidctl: duration must be a positive integer"))
			}

			vol, err := openVolume(afero.NewOsFs(), *configPath)
			if err != nil {
				return err
			}
			if err := vol.Mount(false); err != nil {
				return fatalErr(err)
			}
			defer vol.Unmount(time.Now().Unix())

			runID := uuid.New()
			fmt.Printf("run: %s\n", runID)
			fmt.Printf("running %s %s I/O benchmark with %d threads, block size %d, write ratio %.2f\n",
				modeLabel(random), alignLabel(aligned), threads, blockSize, writeRatio)

			var done int32
			results := make([]benchResult, threads)
			var wg sync.WaitGroup
			wg.Add(threads)
			for i := 0; i < threads; i++ {
				go func(i int) {
					defer wg.Done()
					benchThread(vol, random, aligned, writeRatio, blockSize, int64(i), &done, &results[i])
				}(i)
			}

			start := time.Now()
			time.Sleep(time.Duration(durationSec) * time.Second)
			atomic.StoreInt32(&done, 1)
			wg.Wait()
			elapsed := time.Since(start)

			var bytesWritten, bytesRead, ioCount uint64
			for _, r := range results {
				bytesWritten += r.bytesWritten
				bytesRead += r.bytesRead
				ioCount += r.ioCount
			}

			stats := vol.Stats()
			fmt.Printf("write throughput: %.2f MB/s\n", mbPerSec(int64(bytesWritten), elapsed))
			fmt.Printf("read throughput:  %.2f MB/s\n", mbPerSec(int64(bytesRead), elapsed))
			fmt.Printf("I/O operations per second: %.2f\n", float64(ioCount)/elapsed.Seconds())
			fmt.Printf("stripe units read=%d written=%d\n", stats.UnitsRead, stats.UnitsWritten)
			return nil
		},
	}
	return cmd
}

// benchThread runs one benchmark goroutine until *done is set,
// issuing linear or random, aligned or unaligned requests against vol
// and accumulating the results it performed into res.
func benchThread(vol *volume.Volume, random, aligned bool, writeRatio float64, blockSize int, seed int64, done *int32, res *benchResult) {
	rng := rand.New(rand.NewSource(seed ^ time.Now().UnixNano()))
	capacity := vol.Capacity()
	maxOffset := capacity - int64(blockSize)
	if maxOffset < 0 {
		maxOffset = 0
	}

	buf := make([]byte, blockSize)
	rng.Read(buf)
	readBuf := make([]byte, blockSize)

	linearOffset := int64(0)
	if !aligned {
		linearOffset = rng.Int63n(int64(blockSize))
	}

	for atomic.LoadInt32(done) == 0 {
		var offset int64
		if random {
			if aligned {
				blocks := maxOffset/int64(blockSize) + 1
				offset = rng.Int63n(blocks) * int64(blockSize)
			} else {
				offset = rng.Int63n(maxOffset + 1)
			}
		} else {
			offset = linearOffset
			linearOffset += int64(blockSize)
			if linearOffset > maxOffset {
				linearOffset = 0
				if !aligned {
					linearOffset = rng.Int63n(int64(blockSize))
				}
			}
		}

		if rng.Float64() < writeRatio {
			if vol.WriteAt(offset, buf) == nil {
				res.bytesWritten += uint64(blockSize)
			}
		} else {
			if vol.ReadAt(offset, readBuf) == nil {
				res.bytesRead += uint64(blockSize)
			}
		}
		res.ioCount++
	}
}

func parseLR(s string) (bool, error) {
	switch s {
	case "l":
		return false, nil
	case "r":
		return true, nil
	default:
		return false, fmt.Errorf("raidctl: expected \"l\" or \"r\", got %q", s)
	}
}

func parseAN(s string) (bool, error) {
	switch s {
	case "a":
		return true, nil
	case "n":
		return false, nil
	default:
		return false, fmt.Errorf("raidctl: expected \"a\" or \"n\", got %q", s)
	}
}

func modeLabel(random bool) string {
	if random {
		return "random"
	}
	return "linear"
}

func alignLabel(aligned bool) string {
	if aligned {
		return "aligned"
	}
	return "non-aligned"
}

func mbPerSec(bytes int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(bytes) / (1024 * 1024) / d.Seconds()
}
