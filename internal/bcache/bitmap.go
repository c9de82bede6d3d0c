package bcache

import "github.com/gokernel/xvfs/internal/layout"

// Alloc finds the first free data block, marks it used in the on-disk
// bitmap, zeroes its contents, and returns its block number. Both
// writes go through ctx so they become durable atomically with
// whatever else the caller is doing in this operation.
//
// A full bitmap is fatal in the sense the original implementation
// treats it: Alloc panics with the bcache.no_free_blocks invariant
// rather than returning an error, so there is no graceful degradation
// path.
func (c *Cache) Alloc(ctx *OpContext) uint32 {
	numBitmapBlocks := (c.sb.NumBlocks + layout.BitsPerBlock - 1) / layout.BitsPerBlock

	for bi := uint32(0); bi < numBitmapBlocks; bi++ {
		bitmapBlockNo := c.sb.BitmapStart + bi
		b := c.Acquire(bitmapBlockNo)

		limit := uint32(layout.BitsPerBlock)
		if bi*layout.BitsPerBlock+limit > c.sb.NumBlocks {
			limit = c.sb.NumBlocks - bi*layout.BitsPerBlock
		}

		found := false
		var blockNo uint32
		data := b.Bytes()
		for i := uint32(0); i < limit; i++ {
			byteIdx, mask := i/8, byte(1<<(i%8))
			if data[byteIdx]&mask != 0 {
				continue
			}
			data[byteIdx] |= mask
			blockNo = bi*layout.BitsPerBlock + i
			found = true
			break
		}

		if !found {
			c.Release(b)
			continue
		}

		c.Sync(ctx, b)
		c.Release(b)

		nb := c.Acquire(blockNo)
		zeroed := nb.Bytes()
		for i := range zeroed {
			zeroed[i] = 0
		}
		c.Sync(ctx, nb)
		c.Release(nb)
		return blockNo
	}

	c.panicf("bcache.no_free_blocks", "bitmap exhausted")
	panic("unreachable")
}

// Free clears blockNo's bit in the bitmap. blockNo is an absolute
// device block number; the bit's position within its bitmap block and
// the block's offset from BitmapStart both fall straight out of it, so
// there's only the one decomposition here, not two independent ones
// that happen to need to agree.
func (c *Cache) Free(ctx *OpContext, blockNo uint32) {
	bitmapBlockNo := c.sb.BitmapStart + blockNo/layout.BitsPerBlock
	bitIdx := blockNo % layout.BitsPerBlock

	b := c.Acquire(bitmapBlockNo)
	data := b.Bytes()
	byteIdx, mask := bitIdx/8, byte(1<<(bitIdx%8))
	if data[byteIdx]&mask == 0 {
		c.Release(b)
		c.panicf("bcache.double_free", "block %d already free", blockNo)
	}
	data[byteIdx] &^= mask
	c.Sync(ctx, b)
	c.Release(b)
}

// MarkRangeUsed marks [0, n) as allocated in the bitmap without
// zeroing their contents or going through the log — used once, at
// format time, to reserve the boot/log/inode/bitmap regions so Alloc
// never hands them out.
func (c *Cache) MarkRangeUsed(ctx *OpContext, n uint32) {
	for blockNo := uint32(0); blockNo < n; blockNo++ {
		bitmapBlockNo := c.sb.BitmapStart + blockNo/layout.BitsPerBlock
		bitIdx := blockNo % layout.BitsPerBlock
		b := c.Acquire(bitmapBlockNo)
		data := b.Bytes()
		data[bitIdx/8] |= 1 << (bitIdx % 8)
		c.Sync(ctx, b)
		c.Release(b)
	}
}
