// Package bdq implements the Block Device Queue: it turns a
// synchronous-looking device into an interrupt-driven one underneath,
// the way a real SD/eMMC controller would, and re-exposes a
// synchronous rw() on top. A FIFO of in-flight requests is protected
// by its own lock; only one device transaction is ever outstanding,
// so concurrency comes from queueing, not from the device itself.
package bdq

import (
	"fmt"
	"sync"

	"github.com/gokernel/xvfs/internal/device"
	"github.com/gokernel/xvfs/internal/layout"
)

// BufFlag records what state a Buf is in.
type BufFlag uint8

const (
	// BufDirty means the buf holds data to be written to disk.
	BufDirty BufFlag = 1 << iota
	// BufValid means the buf's Data reflects the on-disk contents.
	BufValid
)

// Buf is a single block-sized I/O request. It is owned by whichever
// caller submitted it until its completion fires exactly once.
type Buf struct {
	BlockNo uint32
	Flags   BufFlag
	Data    [layout.BlockSize]byte

	done chan struct{}
}

// NewBuf allocates a Buf for blockNo.
func NewBuf(blockNo uint32) *Buf {
	return &Buf{BlockNo: blockNo}
}

// Logger is the minimal logging surface the queue needs.
type Logger interface {
	Debugf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}

// Queue serializes block-sized read/write requests to a single Device.
type Queue struct {
	dev    device.Device
	logger Logger

	mu      sync.Mutex
	pending []*Buf

	kick   chan struct{}
	closed chan struct{}
	once   sync.Once
}

// New creates a Queue driving dev. A background goroutine plays the
// role of the device's interrupt handler: it inspects the queue head,
// services it, signals completion, and moves on to the next head if
// one is waiting — exactly the pattern a real sd_intr follows.
func New(dev device.Device, logger Logger) *Queue {
	if logger == nil {
		logger = noopLogger{}
	}
	q := &Queue{
		dev:    dev,
		logger: logger,
		kick:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	go q.run()
	return q
}

// Rw submits buf for I/O determined by buf.Flags&BufDirty (write if
// set, else read), and blocks until the device has serviced it. There
// is no error return: device errors are fatal (spec section 7) and
// surface as a panic from the background handler, not a return value
// here.
func (q *Queue) Rw(b *Buf) {
	b.done = make(chan struct{})

	q.mu.Lock()
	wasEmpty := len(q.pending) == 0
	q.pending = append(q.pending, b)
	q.mu.Unlock()

	if wasEmpty {
		select {
		case q.kick <- struct{}{}:
		default:
		}
	}

	<-b.done // spurious wakes are impossible: done is closed exactly once
}

// Close stops the background handler. Submits racing with Close may
// never complete; callers must quiesce all Rw calls first.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.closed) })
}

func (q *Queue) run() {
	for {
		select {
		case <-q.closed:
			return
		case <-q.kick:
		}

		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				q.mu.Unlock()
				break
			}
			head := q.pending[0]
			q.mu.Unlock()

			q.service(head)

			q.mu.Lock()
			q.pending = q.pending[1:]
			q.mu.Unlock()

			close(head.done)
		}
	}
}

// service performs the actual device transfer for the queue head. A
// device error is unrecoverable: the driver that lives below this
// queue treats it as fatal, matching spec section 7's "device errors:
// fatal panic".
func (q *Queue) service(b *Buf) {
	if b.Flags&BufDirty != 0 {
		if err := q.dev.WriteBlock(b.BlockNo, b.Data[:]); err != nil {
			panic(fmt.Sprintf("bdq: write block %d: %v", b.BlockNo, err))
		}
		b.Flags &^= BufDirty
		q.logger.Debugf("bdq: wrote block %d", b.BlockNo)
		return
	}

	if err := q.dev.ReadBlock(b.BlockNo, b.Data[:]); err != nil {
		panic(fmt.Sprintf("bdq: read block %d: %v", b.BlockNo, err))
	}
	b.Flags |= BufValid
	q.logger.Debugf("bdq: read block %d", b.BlockNo)
}
