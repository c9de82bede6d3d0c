// Package device provides the pluggable backing stores consumed by the
// block device queue. This is the external collaborator boundary
// described in spec section 6: the raw SD/eMMC controller protocol is
// out of scope, so callers provide any Device that can read and write
// fixed-size blocks.
package device

import "github.com/gokernel/xvfs/internal/layout"

// Device is a synchronous, block-addressed backing store.
// Implementations report every failure (bounds, buffer size, I/O) as a
// returned error; the block device queue above them treats any such
// error as fatal (spec section 7) and panics.
type Device interface {
	// ReadBlock fills buf (len == layout.BlockSize) with the contents
	// of block blockNo.
	ReadBlock(blockNo uint32, buf []byte) error

	// WriteBlock persists buf (len == layout.BlockSize) to block blockNo.
	WriteBlock(blockNo uint32, buf []byte) error

	// NumBlocks reports the device's total block count.
	NumBlocks() uint32

	// Close releases any resources held by the device.
	Close() error
}

// ErrOutOfRange is returned by a Device implementation when blockNo is
// not addressable. Callers treat this as fatal per spec section 7.
type ErrOutOfRange struct {
	BlockNo uint32
	NumBlks uint32
}

func (e *ErrOutOfRange) Error() string {
	return "device: block out of range"
}

func checkBounds(blockNo, numBlocks uint32) error {
	if blockNo >= numBlocks {
		return &ErrOutOfRange{BlockNo: blockNo, NumBlks: numBlocks}
	}
	return nil
}

func checkBufSize(buf []byte) error {
	if len(buf) != layout.BlockSize {
		return errBadBufSize
	}
	return nil
}
