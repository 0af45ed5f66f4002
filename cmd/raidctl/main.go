// Command raidctl drives a simulated RAID volume from the command
// line: initialize its backing files, mount and verify it, store and
// fetch a file, check codeword consistency, and run a throughput
// benchmark.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Exit codes follow the external contract: 0 success, 1 a usage or
// config-parse error, 2 a runtime failure (disk I/O, mount failure),
// 3 a data mismatch (checksum/codeword/verify failure).
const (
	exitOK       = 0
	exitUsage    = 1
	exitRuntime  = 2
	exitMismatch = 3
)

// cliError pairs an error with the exit code main() should use, so
// deeply nested helpers can signal "this is a usage problem" versus
// "this is a disk failure" without main() re-deriving the distinction
// from error text.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func usageErr(err error) error    { return &cliError{code: exitUsage, err: err} }
func fatalErr(err error) error    { return &cliError{code: exitRuntime, err: err} }
func mismatchErr(err error) error { return &cliError{code: exitMismatch, err: err} }

var log = logrus.StandardLogger()

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		code := exitRuntime
		var ce *cliError
		if as(err, &ce) {
			code = ce.code
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(code)
	}
}

// as is a tiny errors.As wrapper kept local so this file doesn't need
// to import "errors" just for one call site.
func as(err error, target **cliError) bool {
	for err != nil {
		if ce, ok := err.(*cliError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "raidctl",
		Short: "Drive a simulated RAID-5 / Reed-Solomon volume",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "raidsim.yaml", "volume configuration file")

	root.AddCommand(
		newInitCmd(&configPath),
		newVerifyCmd(&configPath),
		newStoreCmd(&configPath),
		newGetCmd(&configPath),
		newCheckCmd(&configPath),
		newBenchCmd(&configPath),
	)
	return root
}
