//go:build !unix

package disk

import "github.com/spf13/afero"

// tryMmap has no portable implementation outside unix; every caller
// already has a working ReadAt/WriteAt fallback.
func tryMmap(f afero.File, off, size int64) (mmapRegion, error) {
	return nil, nil
}
