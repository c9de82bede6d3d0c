package bcache

import (
	"sync"

	"github.com/gokernel/xvfs/internal/layout"
)

// logState is the in-memory mirror of the on-disk log header plus the
// group-commit bookkeeping layered on top of it. Every field here is
// guarded by mu; cond is used to wait for admission into a batch and
// to be woken once a commit finishes.
type logState struct {
	mu   sync.Mutex
	cond *sync.Cond

	header      layout.LogHeader
	outstanding uint32
	committing  bool

	lastCommit uint32 // blocks installed by the most recent commit
}

// OpContext tracks one in-flight transaction's remaining quota of log
// slots (spec: OP_MAX_NUM_BLOCKS per operation, enforced so a single
// runaway operation can't starve the rest of the log).
type OpContext struct {
	remaining uint32
}

// BeginOp admits a new operation into the current batch, blocking
// while a commit is in progress or while admitting this operation
// could overflow the log even in the worst case (every outstanding op
// still touching its full quota).
func (c *Cache) BeginOp() *OpContext {
	c.log.mu.Lock()
	defer c.log.mu.Unlock()

	for {
		full := c.log.header.NumBlocks+(c.log.outstanding+1)*layout.OpMaxNumBlocks > layout.LogMaxSize
		if !c.log.committing && !full {
			break
		}
		c.log.cond.Wait()
	}
	c.log.outstanding++
	return &OpContext{remaining: layout.OpMaxNumBlocks}
}

// Sync marks b as dirty within ctx's transaction. A nil ctx means the
// caller wants an immediate, non-transactional write-through instead
// (used for blocks outside any operation, e.g. test fixtures).
//
// Repeated Sync calls for the same block within one operation are
// absorbed into a single log slot.
func (c *Cache) Sync(ctx *OpContext, b *CachedBlock) {
	if ctx == nil {
		c.writeThrough(b)
		return
	}

	c.mu.Lock()
	b.pinned = true
	c.mu.Unlock()

	c.log.mu.Lock()
	defer c.log.mu.Unlock()

	for i := uint32(0); i < c.log.header.NumBlocks; i++ {
		if c.log.header.BlockNo[i] == b.blockNo {
			return
		}
	}

	if ctx.remaining == 0 {
		c.panicf("bcache.op_quota_exceeded", "operation exceeded its log quota of %d blocks", layout.OpMaxNumBlocks)
	}
	if c.log.header.NumBlocks >= layout.LogMaxSize {
		c.panicf("bcache.log_overflow", "log overflow: %d blocks pending", c.log.header.NumBlocks)
	}
	c.log.header.BlockNo[c.log.header.NumBlocks] = b.blockNo
	c.log.header.NumBlocks++
	ctx.remaining--
}

// EndOp retires ctx. The last outstanding operation in a batch runs
// the commit; everyone else is simply released back to wait for the
// next admission window.
func (c *Cache) EndOp(ctx *OpContext) {
	c.log.mu.Lock()
	c.log.outstanding--
	doCommit := false
	if c.log.outstanding == 0 {
		doCommit = true
		c.log.committing = true
	}
	c.log.mu.Unlock()

	if !doCommit {
		c.log.cond.Broadcast()
		return
	}

	c.commit()

	c.log.mu.Lock()
	c.log.committing = false
	c.log.mu.Unlock()
	c.log.cond.Broadcast()
}

// commit runs the five-phase protocol: copy the batch into the log
// region, write the header (the commit point), install each block to
// its home location and unpin it, then zero the header. Phase five —
// releasing waiters — is the caller's job (EndOp), since it also has
// to flip committing back off first.
//
// The log's own mutex is never held across this call: every step here
// goes through Acquire/Release, which can block on a block's
// sleep-lock, and holding the log spinlock across that would invert
// the lock order against ordinary Sync calls.
func (c *Cache) commit() {
	c.log.mu.Lock()
	n := c.log.header.NumBlocks
	blockNos := append([]uint32(nil), c.log.header.BlockNo[:n]...)
	c.log.mu.Unlock()

	if n == 0 {
		return
	}

	for i, blockNo := range blockNos {
		c.copyBlock(blockNo, c.sb.LogStart+1+uint32(i), false)
	}

	c.writeHeader(n, blockNos)

	for i, blockNo := range blockNos {
		c.copyBlock(c.sb.LogStart+1+uint32(i), blockNo, true)
	}

	c.writeHeader(0, nil)

	c.log.mu.Lock()
	c.log.lastCommit = n
	c.log.mu.Unlock()
}

// LastCommitBlocks reports how many blocks the most recently finished
// commit installed, for metrics observation at the fs façade.
func (c *Cache) LastCommitBlocks() uint32 {
	c.log.mu.Lock()
	defer c.log.mu.Unlock()
	return c.log.lastCommit
}

func (c *Cache) writeHeader(n uint32, blockNos []uint32) {
	h := layout.LogHeader{NumBlocks: n}
	copy(h.BlockNo[:], blockNos)

	b := c.Acquire(c.sb.LogStart)
	copy(b.Bytes(), layout.MarshalLogHeader(&h))
	c.writeThrough(b)
	c.Release(b)

	c.log.mu.Lock()
	c.log.header = h
	c.log.mu.Unlock()
}

// Recover replays a committed-but-not-installed transaction found at
// mount time. It must run before any other operation touches the
// device: a header with NumBlocks > 0 means phases one and two of a
// prior commit finished but the process (or machine) went away before
// phases three and four did, so recovery finishes the job by running
// install and zero directly.
func (c *Cache) Recover() {
	b := c.Acquire(c.sb.LogStart)
	var h layout.LogHeader
	if err := layout.UnmarshalLogHeader(b.Bytes(), &h); err != nil {
		c.panicf("bcache.corrupt_log_header", "recover: %v", err)
	}
	c.Release(b)

	c.log.mu.Lock()
	c.log.header = h
	c.log.mu.Unlock()

	if h.NumBlocks == 0 {
		return
	}

	blockNos := append([]uint32(nil), h.BlockNo[:h.NumBlocks]...)
	for i, blockNo := range blockNos {
		c.copyBlock(c.sb.LogStart+1+uint32(i), blockNo, true)
	}
	c.writeHeader(0, nil)
}
