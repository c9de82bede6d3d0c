package inode

import (
	"github.com/gokernel/xvfs/internal/bcache"
	"github.com/gokernel/xvfs/internal/invariant"
	"github.com/gokernel/xvfs/internal/layout"
)

// Map returns the block number backing the byte at offset, allocating
// it on demand when ctx is non-nil. A nil ctx means the caller is only
// reading: a hole then maps to block 0 rather than allocating.
// Modified reports whether Map allocated a new block and mutated n's
// entry. Caller must hold n's lock.
func (n *Inode) Map(ctx *bcache.OpContext, offset uint32, modified *bool) uint32 {
	if modified != nil {
		*modified = false
	}

	blockIdx := offset / layout.BlockSize
	if blockIdx < layout.InodeNumDirect {
		addr := n.entry.Addrs[blockIdx]
		if addr == 0 {
			if ctx == nil {
				return 0
			}
			addr = n.tree.cache.Alloc(ctx)
			n.entry.Addrs[blockIdx] = addr
			if modified != nil {
				*modified = true
			}
		}
		return addr
	}

	blockIdx -= layout.InodeNumDirect
	if blockIdx >= layout.InodeNumIndirect {
		invariant.Violate("inode.offset_out_of_range", "offset %d exceeds max file size", offset)
	}

	indirectAddr := n.entry.Indirect
	if indirectAddr == 0 {
		if ctx == nil {
			return 0
		}
		indirectAddr = n.tree.cache.Alloc(ctx)
		n.entry.Indirect = indirectAddr
		if modified != nil {
			*modified = true
		}
	}

	b := n.tree.cache.Acquire(indirectAddr)
	addr := layout.GetIndirectAddr(b.Bytes(), int(blockIdx))
	if addr == 0 {
		if ctx == nil {
			n.tree.cache.Release(b)
			return 0
		}
		addr = n.tree.cache.Alloc(ctx)
		layout.PutIndirectAddr(b.Bytes(), int(blockIdx), addr)
		if modified != nil {
			*modified = true
		}
	}
	n.tree.cache.Sync(ctx, b)
	n.tree.cache.Release(b)
	return addr
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// Read copies up to len(dest) bytes starting at offset into dest,
// clamped to the inode's current size, and returns the number of
// bytes actually copied. Caller must hold n's lock.
func (n *Inode) Read(dest []byte, offset uint32) uint32 {
	count := uint32(len(dest))
	if offset > n.entry.NumBytes {
		invariant.Violate("inode.read_out_of_range", "offset %d > size %d", offset, n.entry.NumBytes)
	}
	if offset+count > n.entry.NumBytes {
		count = n.entry.NumBytes - offset
	}

	var total uint32
	for total < count {
		blockNo := n.Map(nil, offset, nil)
		within := offset % layout.BlockSize
		m := minUint32(count-total, layout.BlockSize-within)

		if blockNo == 0 {
			for i := uint32(0); i < m; i++ {
				dest[total+i] = 0
			}
		} else {
			b := n.tree.cache.Acquire(blockNo)
			copy(dest[total:total+m], b.Bytes()[within:within+m])
			n.tree.cache.Release(b)
		}

		total += m
		offset += m
	}
	return count
}

// Write copies count bytes from src to offset, allocating blocks as
// needed and growing n's recorded size if the write extends past it.
// Caller must hold n's lock.
func (n *Inode) Write(ctx *bcache.OpContext, src []byte, offset uint32) uint32 {
	count := uint32(len(src))
	if offset > n.entry.NumBytes {
		invariant.Violate("inode.write_gap", "offset %d > size %d: sparse writes unsupported", offset, n.entry.NumBytes)
	}
	if offset+count > layout.InodeMaxBytes {
		invariant.Violate("inode.write_too_large", "offset+count %d exceeds max file size %d", offset+count, uint32(layout.InodeMaxBytes))
	}

	var total uint32
	for total < count {
		blockNo := n.Map(ctx, offset, nil)
		within := offset % layout.BlockSize
		m := minUint32(count-total, layout.BlockSize-within)

		b := n.tree.cache.Acquire(blockNo)
		copy(b.Bytes()[within:within+m], src[total:total+m])
		n.tree.cache.Sync(ctx, b)
		n.tree.cache.Release(b)

		total += m
		offset += m
	}

	if count > 0 && n.entry.NumBytes < offset {
		n.entry.NumBytes = offset
		n.Sync(ctx, true)
	}
	return count
}
