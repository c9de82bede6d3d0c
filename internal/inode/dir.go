package inode

import (
	"errors"

	"github.com/gokernel/xvfs/internal/bcache"
	"github.com/gokernel/xvfs/internal/invariant"
	"github.com/gokernel/xvfs/internal/layout"
)

// ErrNameExists is returned by Insert when name is already present in
// the directory.
var ErrNameExists = errors.New("inode: name already exists in directory")

// Lookup searches a directory inode's entries for name, returning its
// inode number (0 if absent) and, if index is non-nil, the entry's
// slot index for a later Remove. Caller must hold n's lock and n must
// be a directory.
func (n *Inode) Lookup(name string, index *uint32) uint32 {
	if n.entry.Type != layout.InodeDirectory {
		invariant.Violate("inode.lookup_not_a_directory", "inode %d is type %v", n.inodeNo, n.entry.Type)
	}

	var raw [layout.DirEntrySize]byte
	numEntries := n.entry.NumBytes / layout.DirEntrySize
	for i := uint32(0); i < numEntries; i++ {
		n.Read(raw[:], i*layout.DirEntrySize)
		var d layout.DirEntry
		if err := layout.UnmarshalDirEntry(raw[:], &d); err != nil {
			invariant.Violate("inode.corrupt_dir_entry", "inode %d slot %d: %v", n.inodeNo, i, err)
		}
		if d.NameString() == name {
			if index != nil {
				*index = i
			}
			return d.InodeNo
		}
	}
	return 0
}

// Insert appends a new directory entry mapping name to inodeNo,
// returning the byte offset it was written at. original_source returns
// -1 (cast to usize) on a duplicate name; this module returns
// ErrNameExists instead of an impossible-to-check sentinel value.
// Caller must hold n's lock and n must be a directory.
func (n *Inode) Insert(ctx *bcache.OpContext, name string, inodeNo uint32) (uint32, error) {
	if n.Lookup(name, nil) != 0 {
		return 0, ErrNameExists
	}

	var d layout.DirEntry
	d.InodeNo = inodeNo
	d.SetName(name)

	offset := n.entry.NumBytes
	n.Write(ctx, layout.MarshalDirEntry(&d), offset)
	return offset, nil
}

// Remove zeroes the directory entry at slot index, leaving a hole: per
// the module's directory-compaction decision, slots are never reused
// and Insert always appends past the current end. Caller must hold
// n's lock and n must be a directory.
func (n *Inode) Remove(ctx *bcache.OpContext, index uint32) {
	offset := index * layout.DirEntrySize
	var zero [layout.DirEntrySize]byte
	n.Write(ctx, zero[:], offset)
}
