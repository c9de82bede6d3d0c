package device

import (
	"sync"

	"github.com/gokernel/xvfs/internal/layout"
)

// Memory is a RAM-backed Device, useful for tests and ephemeral mounts.
// Unlike a multi-queue block device, the block device queue above this
// type guarantees at most one transaction is ever outstanding (spec
// section 4.1: "only one device transaction is outstanding at a time"),
// so a single mutex is sufficient here; the teacher's sharded-lock
// backend exists to let independent hardware queues hit the store
// concurrently, which this single-consumer design never does.
type Memory struct {
	mu   sync.Mutex
	data []byte
}

// NewMemory creates a zero-filled Memory device of numBlocks blocks.
func NewMemory(numBlocks uint32) *Memory {
	return &Memory{data: make([]byte, int(numBlocks)*layout.BlockSize)}
}

func (m *Memory) ReadBlock(blockNo uint32, buf []byte) error {
	if err := checkBufSize(buf); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkBounds(blockNo, m.numBlocksLocked()); err != nil {
		return err
	}
	off := int(blockNo) * layout.BlockSize
	copy(buf, m.data[off:off+layout.BlockSize])
	return nil
}

func (m *Memory) WriteBlock(blockNo uint32, buf []byte) error {
	if err := checkBufSize(buf); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkBounds(blockNo, m.numBlocksLocked()); err != nil {
		return err
	}
	off := int(blockNo) * layout.BlockSize
	copy(m.data[off:off+layout.BlockSize], buf)
	return nil
}

func (m *Memory) NumBlocks() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numBlocksLocked()
}

func (m *Memory) numBlocksLocked() uint32 {
	return uint32(len(m.data) / layout.BlockSize)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

var _ Device = (*Memory)(nil)
