// Package inode implements the Inode Layer: lifecycle management for
// in-memory Inodes backed by on-disk InodeEntry slots, grounded on
// original_source's inode.c line for line. The tree keeps one
// in-memory Inode per distinct inode number currently referenced,
// ref-counted, independent of how many times it has been looked up.
package inode

import (
	"sync"

	"github.com/gokernel/xvfs/internal/bcache"
	"github.com/gokernel/xvfs/internal/invariant"
	"github.com/gokernel/xvfs/internal/layout"
)

// Logger is the minimal logging surface the inode layer needs.
type Logger interface {
	Debugf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}

// Cache is the subset of *bcache.Cache the inode layer drives. Kept as
// an interface so tests can substitute a fake block store without
// pulling in a real device and queue.
type Cache interface {
	Acquire(blockNo uint32) *bcache.CachedBlock
	Release(b *bcache.CachedBlock)
	Sync(ctx *bcache.OpContext, b *bcache.CachedBlock)
	Alloc(ctx *bcache.OpContext) uint32
	Free(ctx *bcache.OpContext, blockNo uint32)
}

// Stat is the Go-native equivalent of original_source's stati, minus
// the POSIX struct stat plumbing spec.md's Non-goals exclude.
type Stat struct {
	InodeNo  uint32
	NumLinks uint16
	NumBytes uint32
	Type     layout.InodeType
}

// Tree owns every live in-memory Inode for one mounted filesystem.
type Tree struct {
	sb     *layout.Superblock
	cache  Cache
	logger Logger

	mu    sync.Mutex
	nodes []*Inode
}

// NewTree creates a Tree backed by cache, using sb to locate the inode
// region on disk.
func NewTree(sb *layout.Superblock, cache Cache, logger Logger) *Tree {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Tree{sb: sb, cache: cache, logger: logger}
}

// Inode is one in-memory handle onto an on-disk InodeEntry. Entry
// access is only valid while the caller holds the sleep-lock (via
// Lock/Unlock); reference-count and tree-membership fields are
// guarded by the owning Tree's mutex instead.
type Inode struct {
	tree    *Tree
	inodeNo uint32

	rc int32

	lock  sync.Mutex
	valid bool
	entry layout.InodeEntry
}

// InodeNo returns the on-disk inode number this handle represents.
func (n *Inode) InodeNo() uint32 { return n.inodeNo }

func (t *Tree) inodeBlockNo(inodeNo uint32) uint32 {
	return t.sb.InodeStart + inodeNo/layout.InodePerBlock
}

func inodeSlot(inodeNo uint32) int {
	return int(inodeNo % layout.InodePerBlock)
}

// Alloc scans the inode region for a free (INODE_INVALID) slot, claims
// it as typ, and returns its inode number. Panics if none remain: a
// filled inode table is treated the same unrecoverable way
// original_source treats it (PANIC()).
func (t *Tree) Alloc(ctx *bcache.OpContext, typ layout.InodeType) uint32 {
	if typ == layout.InodeInvalid {
		invariant.Violate("inode.alloc_invalid_type", "cannot allocate an inode of type Invalid")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := uint32(1); i < t.sb.NumInodes; i++ {
		b := t.cache.Acquire(t.inodeBlockNo(i))
		var e layout.InodeEntry
		layout.GetInodeEntry(b.Bytes(), inodeSlot(i), &e)
		if e.Type == layout.InodeInvalid {
			e = layout.InodeEntry{Type: typ}
			layout.PutInodeEntry(b.Bytes(), inodeSlot(i), &e)
			t.cache.Sync(ctx, b)
			t.cache.Release(b)
			return i
		}
		t.cache.Release(b)
	}

	invariant.Violate("inode.table_exhausted", "no free inode among %d", t.sb.NumInodes)
	panic("unreachable")
}

// Get returns the (possibly newly created) in-memory Inode for
// inodeNo, incrementing its reference count.
func (t *Tree) Get(inodeNo uint32) *Inode {
	if inodeNo == 0 || inodeNo >= t.sb.NumInodes {
		invariant.Violate("inode.out_of_range", "inode %d out of range [1, %d)", inodeNo, t.sb.NumInodes)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, n := range t.nodes {
		if n.inodeNo == inodeNo {
			n.rc++
			return n
		}
	}

	n := &Inode{tree: t, inodeNo: inodeNo, rc: 1}
	t.nodes = append(t.nodes, n)
	return n
}

// Share increments n's reference count, as if the caller had looked it
// up again via Get.
func (t *Tree) Share(n *Inode) *Inode {
	t.mu.Lock()
	n.rc++
	t.mu.Unlock()
	return n
}

// Root returns the filesystem's root directory inode.
func (t *Tree) Root() (*Inode, error) {
	if layout.RootInodeNo >= t.sb.NumInodes {
		return nil, ErrNoRootInode
	}
	return t.Get(layout.RootInodeNo), nil
}

// Lock acquires n's sleep-lock and, on first lock after creation,
// loads its on-disk entry.
func (n *Inode) Lock() {
	n.lock.Lock()
	if !n.valid {
		b := n.tree.cache.Acquire(n.tree.inodeBlockNo(n.inodeNo))
		layout.GetInodeEntry(b.Bytes(), inodeSlot(n.inodeNo), &n.entry)
		n.tree.cache.Release(b)
		n.valid = true
	}
}

// Unlock releases n's sleep-lock.
func (n *Inode) Unlock() {
	n.lock.Unlock()
}

// Sync writes n's in-memory entry to disk (doWrite true) or reloads it
// from disk (doWrite false, only meaningful while !n.valid). Calling
// it with doWrite and an invalid entry is a caller bug and panics;
// calling it without doWrite on an already valid entry does nothing.
func (n *Inode) Sync(ctx *bcache.OpContext, doWrite bool) {
	b := n.tree.cache.Acquire(n.tree.inodeBlockNo(n.inodeNo))
	slot := inodeSlot(n.inodeNo)

	switch {
	case doWrite && n.valid:
		layout.PutInodeEntry(b.Bytes(), slot, &n.entry)
		n.tree.cache.Sync(ctx, b)
	case !doWrite && !n.valid:
		layout.GetInodeEntry(b.Bytes(), slot, &n.entry)
		n.valid = true
	case !doWrite && n.valid:
		// already in sync, nothing to do
	default:
		invariant.Violate("inode.sync_bad_state", "doWrite=%v valid=%v", doWrite, n.valid)
	}

	n.tree.cache.Release(b)
}

// Stat reports n's current on-disk metadata. Caller must hold n's
// lock.
func (n *Inode) Stat() Stat {
	return Stat{
		InodeNo:  n.inodeNo,
		NumLinks: n.entry.NumLinks,
		NumBytes: n.entry.NumBytes,
		Type:     n.entry.Type,
	}
}

// Clear frees every data block n owns (direct, indirect, and the
// indirect block itself) and resets its size to zero, then writes the
// cleared entry to disk. Caller must hold n's lock.
func (n *Inode) Clear(ctx *bcache.OpContext) {
	for i := range n.entry.Addrs {
		if n.entry.Addrs[i] != 0 {
			n.tree.cache.Free(ctx, n.entry.Addrs[i])
			n.entry.Addrs[i] = 0
		}
	}

	if n.entry.Indirect != 0 {
		b := n.tree.cache.Acquire(n.entry.Indirect)
		for i := 0; i < layout.InodeNumIndirect; i++ {
			addr := layout.GetIndirectAddr(b.Bytes(), i)
			if addr != 0 {
				n.tree.cache.Free(ctx, addr)
				layout.PutIndirectAddr(b.Bytes(), i, 0)
			}
		}
		n.tree.cache.Sync(ctx, b)
		n.tree.cache.Release(b)
		n.tree.cache.Free(ctx, n.entry.Indirect)
		n.entry.Indirect = 0
	}

	n.entry.NumBytes = 0
	n.valid = true
	n.Sync(ctx, true)
}

// Put releases a reference to n. If it was the last reference and the
// link count has already dropped to zero, the inode is cleared,
// invalidated on disk, and dropped from the tree entirely.
func (t *Tree) Put(ctx *bcache.OpContext, n *Inode) {
	t.mu.Lock()

	if n.entry.NumLinks == 0 && n.rc == 1 {
		n.Clear(ctx)

		b := t.cache.Acquire(t.inodeBlockNo(n.inodeNo))
		var e layout.InodeEntry
		e.Type = layout.InodeInvalid
		layout.PutInodeEntry(b.Bytes(), inodeSlot(n.inodeNo), &e)
		t.cache.Sync(ctx, b)
		t.cache.Release(b)

		n.valid = false
		t.detach(n)
		t.mu.Unlock()
		return
	}

	n.rc--
	t.mu.Unlock()
}

func (t *Tree) detach(n *Inode) {
	for i, e := range t.nodes {
		if e == n {
			t.nodes = append(t.nodes[:i], t.nodes[i+1:]...)
			return
		}
	}
}
