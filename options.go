package xvfs

import "github.com/gokernel/xvfs/internal/layout"

// Logger is the logging surface accepted by Options. *logging.Logger
// satisfies it, and every internal layer (bdq, bcache, inode) only
// needs the Debugf half of it, so a Logger flows straight through to
// them unchanged.
type Logger interface {
	Printf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Options configures Format and Mount. A nil *Options (or zero-valued
// fields within one) falls back to DefaultOptions.
type Options struct {
	// NumInodes sets the size of the inode table. Ignored by Mount,
	// which reads the value stamped into the superblock at Format time.
	NumInodes uint32

	// EvictionThreshold is the soft cap on resident cached blocks
	// before Release starts dropping slots instead of recycling them.
	EvictionThreshold int

	// Logger receives debug-level tracing from every layer. Nil means
	// no logging.
	Logger Logger

	// Observer receives metrics events. Nil means Mount records them
	// into the FileSystem's own Metrics through a MetricsObserver.
	Observer Observer
}

// DefaultOptions returns the options Format and Mount use when given
// nil, mirroring the teacher's DefaultParams.
func DefaultOptions() *Options {
	return &Options{
		NumInodes:         128,
		EvictionThreshold: layout.DefaultEvictionThreshold,
	}
}

func mergeOptions(opts *Options) *Options {
	def := DefaultOptions()
	if opts == nil {
		return def
	}
	merged := *opts
	if merged.NumInodes == 0 {
		merged.NumInodes = def.NumInodes
	}
	if merged.EvictionThreshold == 0 {
		merged.EvictionThreshold = def.EvictionThreshold
	}
	return &merged
}
