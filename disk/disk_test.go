package disk

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newFormatted(t *testing.T, diskID uint32) (afero.Fs, *Disk) {
	t.Helper()
	fs := afero.NewMemMapFs()
	const path = "disk0.img"
	f, err := fs.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	d, err := Initialize(fs, path, diskID, 512, 16, 32)
	require.NoError(t, err)
	require.Equal(t, StateInvalid, d.State())

	require.NoError(t, d.ResetDisk())
	require.Equal(t, StateOffline, d.State())
	return fs, d
}

func TestResetDiskThenReinitializeIsOffline(t *testing.T) {
	fs, d := newFormatted(t, 3)
	require.NoError(t, d.Close())

	d2, err := Initialize(fs, "disk0.img", 3, 512, 16, 32)
	require.NoError(t, err)
	require.Equal(t, StateOffline, d2.State())
	require.Equal(t, uint32(3), d2.ID())
	require.Equal(t, uint32(512), d2.BlockSize())
	require.Equal(t, uint64(16), d2.NumBlocks())
}

func TestInitializeRejectsGeometryMismatch(t *testing.T) {
	fs, d := newFormatted(t, 0)
	require.NoError(t, d.Close())

	d2, err := Initialize(fs, "disk0.img", 0, 1024 /* wrong block size */, 16, 32)
	require.NoError(t, err) // Initialize never errors on mismatch, it marks Invalid
	require.Equal(t, StateInvalid, d2.State())
}

func TestMountUnmountRoundTrip(t *testing.T) {
	_, d := newFormatted(t, 0)

	require.NoError(t, d.Mount(true))
	require.Equal(t, StateOnline, d.State())

	require.NoError(t, d.Unmount(1234))
	require.Equal(t, StateOffline, d.State())
	require.Equal(t, int64(1234), d.LastUnmount())
}

func TestMountFromNonOfflineStateFails(t *testing.T) {
	_, d := newFormatted(t, 0)
	require.NoError(t, d.Mount(true))
	require.Error(t, d.Mount(true))
}

func TestWriteBlocksRequiresReadWriteMount(t *testing.T) {
	_, d := newFormatted(t, 0)
	require.NoError(t, d.Mount(false)) // read-only

	buf := make([]byte, 512)
	require.Error(t, d.WriteBlocks(0, 1, buf))
}

func TestReadWriteBlocksRoundTrip(t *testing.T) {
	_, d := newFormatted(t, 0)
	require.NoError(t, d.Mount(true))

	want := make([]byte, 512*2)
	for i := range want {
		want[i] = byte(i)
	}
	require.NoError(t, d.WriteBlocks(3, 2, want))

	got := make([]byte, 512*2)
	require.NoError(t, d.ReadBlocks(3, 2, got))
	require.Equal(t, want, got)
}

func TestReadBlocksFailsWhenOffline(t *testing.T) {
	_, d := newFormatted(t, 0)
	buf := make([]byte, 512)
	require.Error(t, d.ReadBlocks(0, 1, buf))
}

func TestSetArrayDataPersistsAcrossReinitialize(t *testing.T) {
	fs, d := newFormatted(t, 0)
	cfg := make([]byte, 32)
	for i := range cfg {
		cfg[i] = byte(i + 1)
	}
	require.NoError(t, d.SetArrayData(cfg))
	require.NoError(t, d.Close())

	d2, err := Initialize(fs, "disk0.img", 0, 512, 16, 32)
	require.NoError(t, err)
	require.Equal(t, cfg, d2.GetArrayData())
}

func TestSetArrayDataRejectsOversizedRecord(t *testing.T) {
	_, d := newFormatted(t, 0)
	require.Error(t, d.SetArrayData(make([]byte, 64)))
}

func TestIOFaultMarksDiskInvalid(t *testing.T) {
	fs, d := newFormatted(t, 0)
	require.NoError(t, d.Mount(true))
	require.NoError(t, d.Close()) // closing the handle out from under the disk

	buf := make([]byte, 512)
	require.Error(t, d.ReadBlocks(0, 1, buf))
	require.Equal(t, StateInvalid, d.State())
	_ = fs
}

func TestForceInvalid(t *testing.T) {
	_, d := newFormatted(t, 0)
	d.ForceInvalid()
	require.Equal(t, StateInvalid, d.State())
}
