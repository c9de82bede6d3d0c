package bcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gokernel/xvfs/internal/bdq"
	"github.com/gokernel/xvfs/internal/device"
	"github.com/gokernel/xvfs/internal/layout"
)

// reopen simulates a remount: a fresh Cache over the same underlying
// device, with no in-memory state carried over.
func reopen(t *testing.T, dev device.Device, sb *layout.Superblock) *Cache {
	t.Helper()
	q := bdq.New(dev, nil)
	t.Cleanup(q.Close)
	return New(q, sb, nil)
}

func TestCrashBeforeCommitPointLosesTransaction(t *testing.T) {
	dev := device.NewMemory(32)
	sb := &layout.Superblock{NumBlocks: 32, LogStart: 1, NumLogBlks: 4, InodeStart: 5, BitmapStart: 10, DataStart: 12}
	c := reopen(t, dev, sb)

	// Manually run phase one (copy into the log region) without ever
	// reaching the commit point: this is what a crash between "device
	// write accepted" and "header write accepted" leaves behind.
	c.copyBlock(11, sb.LogStart+1, false)

	reopened := reopen(t, dev, sb)
	reopened.Recover()

	got := make([]byte, layout.BlockSize)
	require.NoError(t, dev.ReadBlock(11, got))
	for _, v := range got {
		require.Zero(t, v, "home block must be untouched when the header never committed")
	}
}

func TestCrashAfterCommitPointReplaysTransaction(t *testing.T) {
	dev := device.NewMemory(32)
	sb := &layout.Superblock{NumBlocks: 32, LogStart: 1, NumLogBlks: 4, InodeStart: 5, BitmapStart: 10, DataStart: 12}
	c := reopen(t, dev, sb)

	// Phase one: stage the write in the log region.
	src := c.Acquire(11)
	src.Bytes()[0] = 0x42
	c.writeThrough(src)
	c.Release(src)
	c.copyBlock(11, sb.LogStart+1, false)

	// Phase two, the commit point: write a header naming the pending
	// block, then "crash" — phases three and four never run.
	h := layout.LogHeader{NumBlocks: 1}
	h.BlockNo[0] = 11
	require.NoError(t, dev.WriteBlock(sb.LogStart, layout.MarshalLogHeader(&h)))

	reopened := reopen(t, dev, sb)
	reopened.Recover()

	got := make([]byte, layout.BlockSize)
	require.NoError(t, dev.ReadBlock(11, got))
	require.Equal(t, byte(0x42), got[0], "recovery must install a committed transaction")

	headerBytes := make([]byte, layout.BlockSize)
	require.NoError(t, dev.ReadBlock(sb.LogStart, headerBytes))
	var decoded layout.LogHeader
	require.NoError(t, layout.UnmarshalLogHeader(headerBytes, &decoded))
	require.Zero(t, decoded.NumBlocks, "recovery must zero the header once installed")
}

func TestRecoverIsIdempotent(t *testing.T) {
	dev := device.NewMemory(32)
	sb := &layout.Superblock{NumBlocks: 32, LogStart: 1, NumLogBlks: 4, InodeStart: 5, BitmapStart: 10, DataStart: 12}
	c := reopen(t, dev, sb)

	h := layout.LogHeader{NumBlocks: 1}
	h.BlockNo[0] = 20
	require.NoError(t, dev.WriteBlock(sb.LogStart, layout.MarshalLogHeader(&h)))
	logSlot := make([]byte, layout.BlockSize)
	logSlot[3] = 0x11
	require.NoError(t, dev.WriteBlock(sb.LogStart+1, logSlot))

	c.Recover()
	second := reopen(t, dev, sb)
	require.NotPanics(t, func() { second.Recover() })

	got := make([]byte, layout.BlockSize)
	require.NoError(t, dev.ReadBlock(20, got))
	require.Equal(t, byte(0x11), got[3])
}
