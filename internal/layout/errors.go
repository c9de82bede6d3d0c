package layout

import "errors"

// ErrShortBuffer is returned when decoding a struct from a buffer
// shorter than its fixed on-disk size.
var ErrShortBuffer = errors.New("layout: buffer too short")

// Compile-time checks that the hand-marshaled sizes agree with the
// constants callers rely on, the way kernel-UAPI wire structs are
// pinned to an exact byte count elsewhere in this lineage.
var (
	_ [64 - InodeEntrySize]byte
	_ [InodeEntrySize - 64]byte
	_ [32 - DirEntrySize]byte
	_ [DirEntrySize - 32]byte
)
