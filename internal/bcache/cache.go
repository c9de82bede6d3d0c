// Package bcache implements the Block Cache and, composed with it, the
// Write-Ahead Log: together they are the only path through which the
// inode layer ever touches a block's bytes. A block is acquired (which
// may sleep-lock it and pull it in from the device queue), mutated in
// place, optionally made durable through the log, and released.
//
// CachedBlock contents are guarded by the block's own sleep-lock
// (acquired by Acquire, released by Release); CachedBlock metadata —
// valid, pinned, acquired, and the LRU position — is guarded by the
// Cache's own mutex, never by the log's.
package bcache

import (
	"sync"

	"github.com/gokernel/xvfs/internal/bdq"
	"github.com/gokernel/xvfs/internal/invariant"
	"github.com/gokernel/xvfs/internal/layout"
)

// Logger is the minimal logging surface the cache needs.
type Logger interface {
	Debugf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}

// CachedBlock is one arena slot: a block-sized buffer plus the flags
// that track its cache state.
type CachedBlock struct {
	blockNo uint32
	data    [layout.BlockSize]byte

	valid    bool
	pinned   bool
	acquired bool

	lock sync.Mutex
}

// BlockNo returns the device block number this slot currently holds.
// Only meaningful while the block is held (between Acquire and Release).
func (b *CachedBlock) BlockNo() uint32 { return b.blockNo }

// Bytes exposes the block's data for reading and in-place mutation.
// Callers must hold the block (returned from Acquire, not yet
// Released).
func (b *CachedBlock) Bytes() []byte { return b.data[:] }

// Cache is the LRU arena of CachedBlocks sitting above a Queue, with a
// composed Log giving it the write-ahead-log contract (BeginOp, Sync,
// EndOp, Alloc, Free) on top of plain Acquire/Release.
type Cache struct {
	q      *bdq.Queue
	logger Logger
	sb     *layout.Superblock

	evictionThreshold int

	mu   sync.Mutex
	list []*CachedBlock // MRU at index 0, LRU at the end

	log logState
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithEvictionThreshold overrides the default eviction threshold.
func WithEvictionThreshold(n int) Option {
	return func(c *Cache) { c.evictionThreshold = n }
}

// New creates a Cache driving q, using sb to locate the log, bitmap,
// and data regions for the bitmap and log operations composed in.
func New(q *bdq.Queue, sb *layout.Superblock, logger Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Cache{
		q:                 q,
		logger:            logger,
		sb:                sb,
		evictionThreshold: layout.DefaultEvictionThreshold,
	}
	c.log.cond = sync.NewCond(&c.log.mu)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Len reports how many blocks are currently resident, supplementing
// the original implementation's get_num_cached_blocks debug helper.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.list)
}

func (c *Cache) indexOf(b *CachedBlock) int {
	for i, e := range c.list {
		if e == b {
			return i
		}
	}
	return -1
}

// Acquire returns the CachedBlock for blockNo, sleep-locked and with
// valid data, loading it from the device queue on a cache miss. The
// arena grows on a miss until it reaches evictionThreshold resident
// slots; only once it's full does a miss reuse a free slot, walking
// from the LRU end, so the resident set retains up to evictionThreshold
// most-recently-used blocks instead of collapsing to however many are
// simultaneously held.
func (c *Cache) Acquire(blockNo uint32) *CachedBlock {
	c.mu.Lock()
	for _, b := range c.list {
		if b.blockNo == blockNo {
			b.acquired = true
			c.mu.Unlock()

			b.lock.Lock()
			c.mu.Lock()
			needLoad := !b.valid
			c.mu.Unlock()
			if needLoad {
				c.readFromDevice(b)
				c.mu.Lock()
				b.valid = true
				c.mu.Unlock()
			}
			return b
		}
	}

	if len(c.list) >= c.evictionThreshold {
		for i := len(c.list) - 1; i >= 0; i-- {
			b := c.list[i]
			if b.acquired || b.pinned {
				continue
			}
			b.blockNo = blockNo
			b.valid = false
			b.acquired = true
			c.mu.Unlock()

			b.lock.Lock()
			c.readFromDevice(b)
			c.mu.Lock()
			b.valid = true
			c.mu.Unlock()
			return b
		}
	}

	b := &CachedBlock{blockNo: blockNo, acquired: true}
	c.list = append(c.list, b)
	c.mu.Unlock()

	b.lock.Lock()
	c.readFromDevice(b)
	c.mu.Lock()
	b.valid = true
	c.mu.Unlock()
	return b
}

// Release gives up a block acquired earlier. If the cache is over its
// eviction threshold and the block isn't pinned, the slot is dropped
// entirely rather than moved to the MRU end.
func (c *Cache) Release(b *CachedBlock) {
	c.mu.Lock()
	b.acquired = false

	if idx := c.indexOf(b); idx >= 0 {
		c.list = append(c.list[:idx], c.list[idx+1:]...)
	}

	if !b.pinned && len(c.list) >= c.evictionThreshold {
		c.logger.Debugf("bcache: evicting block %d", b.blockNo)
	} else {
		c.list = append([]*CachedBlock{b}, c.list...)
	}
	c.mu.Unlock()

	b.lock.Unlock()
}

func (c *Cache) readFromDevice(b *CachedBlock) {
	buf := bdq.NewBuf(b.blockNo)
	c.q.Rw(buf)
	copy(b.data[:], buf.Data[:])
}

// writeThrough pushes a block's current contents straight to the
// device queue, bypassing the log. Used for non-transactional writes
// and as the primitive every log phase is built from.
func (c *Cache) writeThrough(b *CachedBlock) {
	buf := bdq.NewBuf(b.blockNo)
	buf.Flags = bdq.BufDirty
	copy(buf.Data[:], b.data[:])
	c.q.Rw(buf)
}

func (c *Cache) copyBlock(fromBlockNo, toBlockNo uint32, clearPinnedOnTo bool) {
	from := c.Acquire(fromBlockNo)
	to := c.Acquire(toBlockNo)
	copy(to.data[:], from.data[:])
	c.writeThrough(to)
	if clearPinnedOnTo {
		c.mu.Lock()
		to.pinned = false
		c.mu.Unlock()
	}
	c.Release(to)
	c.Release(from)
}

func (c *Cache) panicf(name, format string, args ...any) {
	invariant.Violate(name, format, args...)
}
