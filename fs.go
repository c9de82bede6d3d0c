// Package xvfs is the mount façade over the transactional storage
// core: a block device queue, a write-ahead logged block cache, and an
// inode layer. Format lays a fresh image out on a Device; Mount brings
// one up, replaying any transaction the log committed but never
// finished installing.
package xvfs

import (
	"errors"
	"time"

	"github.com/gokernel/xvfs/internal/bcache"
	"github.com/gokernel/xvfs/internal/bdq"
	"github.com/gokernel/xvfs/internal/device"
	"github.com/gokernel/xvfs/internal/inode"
	"github.com/gokernel/xvfs/internal/layout"
)

// ErrNotFormatted is returned by Mount when dev does not carry a valid
// xvfs superblock.
var ErrNotFormatted = errors.New("xvfs: device has no valid xvfs superblock")

// layoutFor computes a Superblock for a device of numBlocks blocks
// holding numInodes inode slots, packing the log, inode table, and
// free-block bitmap back to back starting at block 1 (block 0 holds
// the superblock itself).
func layoutFor(numBlocks, numInodes uint32) *layout.Superblock {
	sb := &layout.Superblock{
		Magic:      layout.SuperblockMagic,
		NumBlocks:  numBlocks,
		NumInodes:  numInodes,
		NumLogBlks: 1 + layout.LogMaxSize,
		LogStart:   1,
	}
	sb.InodeStart = sb.LogStart + sb.NumLogBlks
	numInodeBlocks := (numInodes + layout.InodePerBlock - 1) / layout.InodePerBlock
	sb.BitmapStart = sb.InodeStart + numInodeBlocks
	numBitmapBlocks := (numBlocks + layout.BitsPerBlock - 1) / layout.BitsPerBlock
	sb.DataStart = sb.BitmapStart + numBitmapBlocks
	return sb
}

func zeroBlock(c *bcache.Cache, blockNo uint32) {
	b := c.Acquire(blockNo)
	data := b.Bytes()
	for i := range data {
		data[i] = 0
	}
	c.Sync(nil, b)
	c.Release(b)
}

// Format lays out a fresh xvfs image on dev: a zeroed log, a zeroed
// inode table with inode 1 allocated as the root directory, a bitmap
// with the metadata region pre-marked used, and a superblock written
// to block 0. dev must not be mounted elsewhere concurrently.
func Format(dev device.Device, opts *Options) (sb *layout.Superblock, err error) {
	defer recoverInvariant("fs.format", &err)

	o := mergeOptions(opts)
	sb = layoutFor(dev.NumBlocks(), o.NumInodes)
	if sb.DataStart >= sb.NumBlocks {
		return nil, NewError("fs.format", ErrCodeInvalidParameters, "device too small for the requested inode count")
	}

	q := bdq.New(dev, loggerAdapter{o.Logger})
	defer q.Close()
	c := bcache.New(q, sb, loggerAdapter{o.Logger}, bcache.WithEvictionThreshold(o.EvictionThreshold))

	zeroBlock(c, sb.LogStart)
	for i := uint32(0); i < sb.BitmapStart-sb.InodeStart; i++ {
		zeroBlock(c, sb.InodeStart+i)
	}
	for i := uint32(0); i < sb.DataStart-sb.BitmapStart; i++ {
		zeroBlock(c, sb.BitmapStart+i)
	}
	c.MarkRangeUsed(nil, sb.DataStart)

	tree := inode.NewTree(sb, c, loggerAdapter{o.Logger})
	rootNo := tree.Alloc(nil, layout.InodeDirectory)
	if rootNo != layout.RootInodeNo {
		return nil, NewError("fs.format", ErrCodeInvalidParameters, "root inode allocation did not land on the well-known inode number")
	}
	root := tree.Get(rootNo)
	root.Lock()
	root.Unlock()

	if err := dev.WriteBlock(0, layout.MarshalSuperblock(sb)); err != nil {
		return nil, WrapError("fs.format", err)
	}

	return sb, nil
}

// FileSystem is a mounted xvfs image: the wiring of a Device through a
// Queue, a Cache (with its composed write-ahead log), and an inode
// Tree, plus the metrics and logging hooks that observe it.
type FileSystem struct {
	sb     *layout.Superblock
	dev    device.Device
	queue  *bdq.Queue
	cache  *bcache.Cache
	tree   *inode.Tree
	logger Logger

	metrics  *Metrics
	observer Observer
}

// Mount brings up a FileSystem from dev, replaying any transaction the
// log committed but never finished installing before returning.
func Mount(dev device.Device, opts *Options) (fs *FileSystem, err error) {
	defer recoverInvariant("fs.mount", &err)

	o := mergeOptions(opts)

	buf := make([]byte, layout.BlockSize)
	if err := dev.ReadBlock(0, buf); err != nil {
		return nil, WrapError("fs.mount", err)
	}
	sb := &layout.Superblock{}
	if err := layout.UnmarshalSuperblock(buf, sb); err != nil {
		return nil, WrapError("fs.mount", err)
	}
	if sb.Magic != layout.SuperblockMagic {
		return nil, ErrNotFormatted
	}

	metrics := NewMetrics()
	observer := o.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	q := bdq.New(dev, loggerAdapter{o.Logger})
	c := bcache.New(q, sb, loggerAdapter{o.Logger}, bcache.WithEvictionThreshold(o.EvictionThreshold))
	c.Recover()

	tree := inode.NewTree(sb, c, loggerAdapter{o.Logger})

	return &FileSystem{
		sb:       sb,
		dev:      dev,
		queue:    q,
		cache:    c,
		tree:     tree,
		logger:   o.Logger,
		metrics:  metrics,
		observer: observer,
	}, nil
}

// Close releases the underlying device queue and device. It does not
// run an implicit commit: callers must have already ended every
// outstanding operation.
func (fs *FileSystem) Close() error {
	fs.metrics.Stop()
	fs.queue.Close()
	return fs.dev.Close()
}

// Root returns the filesystem's root directory inode with its reference
// count incremented. The inode is returned unlocked: callers Lock it
// around access and Put the reference when finished with it.
func (fs *FileSystem) Root() (n *inode.Inode, err error) {
	defer recoverInvariant("fs.root", &err)
	return fs.tree.Root()
}

// Tree exposes the underlying inode tree for callers (cmd tools, tests)
// that need direct access beyond Root.
func (fs *FileSystem) Tree() *inode.Tree { return fs.tree }

// Superblock returns the filesystem's on-disk layout.
func (fs *FileSystem) Superblock() *layout.Superblock { return fs.sb }

// Metrics returns the filesystem's metrics collector.
func (fs *FileSystem) Metrics() *Metrics { return fs.metrics }

// MetricsSnapshot returns a point-in-time snapshot of fs.Metrics().
func (fs *FileSystem) MetricsSnapshot() MetricsSnapshot { return fs.metrics.Snapshot() }

// BeginOp starts a new transaction, admitting it into the current
// group-commit batch.
func (fs *FileSystem) BeginOp() *bcache.OpContext { return fs.cache.BeginOp() }

// EndOp retires ctx, running the commit protocol if ctx was the last
// outstanding operation in its batch, and records commit/cache metrics
// through the configured Observer.
func (fs *FileSystem) EndOp(ctx *bcache.OpContext) {
	start := time.Now()
	fs.cache.EndOp(ctx)
	fs.observer.ObserveCommit(fs.cache.LastCommitBlocks(), uint64(time.Since(start).Nanoseconds()), true)
	fs.observer.ObserveCachedBlocks(fs.cache.Len())
}

// loggerAdapter narrows the root Logger interface down to the Debugf
// surface every internal layer actually needs, tolerating a nil
// underlying Logger.
type loggerAdapter struct{ l Logger }

func (a loggerAdapter) Debugf(format string, args ...any) {
	if a.l != nil {
		a.l.Debugf(format, args...)
	}
}
