package inode

import "errors"

// ErrNoRootInode is returned by Tree.Root when the superblock's inode
// table is too small to contain the well-known root inode number —
// original_source's init_inodes only logs a warning and limps on;
// this module treats it as recoverable but reportable instead of
// swallowing it.
var ErrNoRootInode = errors.New("inode: no root inode")
