package xvfs

import (
	"errors"
	"sync"

	"github.com/gokernel/xvfs/internal/layout"
)

// ErrSimulatedFailure is returned by MockDevice.WriteBlock once it has
// been armed with FailAfterWrites and the write budget runs out.
var ErrSimulatedFailure = errors.New("xvfs: simulated device failure")

// MockDevice is an in-memory device.Device for tests, mirroring the
// teacher's MockBackend: it tracks call counts and can inject faults so
// callers can exercise crash-consistency paths without a real crash.
//
// A write that fails (because the budget set by FailAfterWrites has run
// out) still leaves the data buffer exactly as it was before the call,
// modeling a torn-write-never, crash-before-syscall-returns failure —
// the scenario the write-ahead log is built to survive.
type MockDevice struct {
	mu        sync.Mutex
	data      []byte
	numBlocks uint32
	closed    bool

	ReadCalls  int
	WriteCalls int

	writeBudget int // -1 means unlimited
}

// NewMockDevice creates a zero-filled MockDevice of numBlocks blocks.
func NewMockDevice(numBlocks uint32) *MockDevice {
	return &MockDevice{
		data:        make([]byte, int(numBlocks)*layout.BlockSize),
		numBlocks:   numBlocks,
		writeBudget: -1,
	}
}

// FailAfterWrites arms the device to fail every WriteBlock call once n
// successful writes have gone through. n == 0 fails immediately; a
// negative n disables fault injection (the default).
func (m *MockDevice) FailAfterWrites(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeBudget = n
}

func (m *MockDevice) ReadBlock(blockNo uint32, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadCalls++

	if m.closed {
		return errors.New("xvfs: mock device closed")
	}
	if len(buf) != layout.BlockSize {
		return errors.New("xvfs: mock device: bad buffer size")
	}
	if blockNo >= m.numBlocks {
		return errors.New("xvfs: mock device: block out of range")
	}
	off := int(blockNo) * layout.BlockSize
	copy(buf, m.data[off:off+layout.BlockSize])
	return nil
}

func (m *MockDevice) WriteBlock(blockNo uint32, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteCalls++

	if m.closed {
		return errors.New("xvfs: mock device closed")
	}
	if len(buf) != layout.BlockSize {
		return errors.New("xvfs: mock device: bad buffer size")
	}
	if blockNo >= m.numBlocks {
		return errors.New("xvfs: mock device: block out of range")
	}

	if m.writeBudget == 0 {
		return ErrSimulatedFailure
	}
	if m.writeBudget > 0 {
		m.writeBudget--
	}

	off := int(blockNo) * layout.BlockSize
	copy(m.data[off:off+layout.BlockSize], buf)
	return nil
}

func (m *MockDevice) NumBlocks() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numBlocks
}

func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Snapshot returns a copy of the device's raw bytes, useful for
// simulating a remount onto a fresh MockDevice after a "crash" without
// going through the original device's (possibly now-failing) path.
func (m *MockDevice) Snapshot() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// NewMockDeviceFromSnapshot creates a MockDevice pre-populated with
// data captured by Snapshot, simulating remounting the same backing
// store after a restart.
func NewMockDeviceFromSnapshot(data []byte) *MockDevice {
	numBlocks := uint32(len(data) / layout.BlockSize)
	d := NewMockDevice(numBlocks)
	copy(d.data, data)
	return d
}
