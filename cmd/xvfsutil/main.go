// Command xvfsutil is a tiny shell against a mounted xvfs image:
// ls/cat/put/stat operating on flat names in the root directory. Path
// resolution through subdirectories is out of scope (spec §1; the
// original source's namex/namei/nameiparent are themselves unfinished
// stubs), so every name here is looked up directly under the root.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/gokernel/xvfs"
	"github.com/gokernel/xvfs/internal/device"
	"github.com/gokernel/xvfs/internal/inode"
	"github.com/gokernel/xvfs/internal/layout"
)

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		log.Fatalf("usage: xvfsutil <image> <ls|cat|put|stat> [args...]")
	}
	path, cmd, rest := args[0], args[1], args[2:]

	dev, err := device.OpenFile(path, 0)
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	defer dev.Close()

	fs, err := xvfs.Mount(dev, nil)
	if err != nil {
		log.Fatalf("mount %s: %v", path, err)
	}
	defer fs.Close()

	root, err := fs.Root()
	if err != nil {
		log.Fatalf("root: %v", err)
	}
	root.Lock()
	defer root.Unlock()

	switch cmd {
	case "ls":
		runLs(fs, root)
	case "cat":
		if len(rest) != 1 {
			log.Fatalf("usage: xvfsutil <image> cat <name>")
		}
		runCat(fs, root, rest[0])
	case "put":
		if len(rest) != 2 {
			log.Fatalf("usage: xvfsutil <image> put <name> <localfile>")
		}
		runPut(fs, root, rest[0], rest[1])
	case "stat":
		if len(rest) != 1 {
			log.Fatalf("usage: xvfsutil <image> stat <name>")
		}
		runStat(fs, root, rest[0])
	default:
		log.Fatalf("unknown command %q", cmd)
	}
}

// runLs walks the root directory's entries the same way
// (*inode.Inode).Lookup does internally, but prints every live name
// instead of searching for one.
func runLs(fs *xvfs.FileSystem, root *inode.Inode) {
	stat := root.Stat()
	numEntries := stat.NumBytes / layout.DirEntrySize
	var raw [layout.DirEntrySize]byte
	for i := uint32(0); i < numEntries; i++ {
		root.Read(raw[:], i*layout.DirEntrySize)
		var d layout.DirEntry
		if err := layout.UnmarshalDirEntry(raw[:], &d); err != nil {
			log.Fatalf("corrupt directory entry %d: %v", i, err)
		}
		if d.InodeNo == 0 {
			continue // tombstone left by a prior Remove
		}
		child := fs.Tree().Get(d.InodeNo)
		child.Lock()
		childStat := child.Stat()
		child.Unlock()
		fmt.Printf("%-28s inode=%-4d type=%-10v bytes=%d\n", d.NameString(), d.InodeNo, childStat.Type, childStat.NumBytes)
	}
}

func runCat(fs *xvfs.FileSystem, root *inode.Inode, name string) {
	childNo := root.Lookup(name, nil)
	if childNo == 0 {
		log.Fatalf("not found: %s", name)
	}
	child := fs.Tree().Get(childNo)
	child.Lock()
	defer child.Unlock()

	stat := child.Stat()
	buf := make([]byte, layout.BlockSize)
	var offset uint32
	for offset < stat.NumBytes {
		n := child.Read(buf, offset)
		if n == 0 {
			break
		}
		if _, err := os.Stdout.Write(buf[:n]); err != nil {
			log.Fatalf("write stdout: %v", err)
		}
		offset += n
	}
}

func runPut(fs *xvfs.FileSystem, root *inode.Inode, name, localPath string) {
	f, err := os.Open(localPath)
	if err != nil {
		log.Fatalf("open %s: %v", localPath, err)
	}
	defer f.Close()

	ctx := fs.BeginOp()
	childNo := fs.Tree().Alloc(ctx, layout.InodeRegular)
	child := fs.Tree().Get(childNo)
	child.Lock()

	buf := make([]byte, layout.BlockSize)
	var offset uint32
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			child.Write(ctx, buf[:n], offset)
			offset += uint32(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			child.Unlock()
			fs.EndOp(ctx)
			log.Fatalf("read %s: %v", localPath, readErr)
		}
	}
	child.Unlock()

	if _, err := root.Insert(ctx, name, childNo); err != nil {
		fs.EndOp(ctx)
		log.Fatalf("insert %s: %v", name, err)
	}
	fs.EndOp(ctx)

	fmt.Printf("put %s (%d bytes) as inode %d\n", name, offset, childNo)
}

func runStat(fs *xvfs.FileSystem, root *inode.Inode, name string) {
	childNo := root.Lookup(name, nil)
	if childNo == 0 {
		log.Fatalf("not found: %s", name)
	}
	child := fs.Tree().Get(childNo)
	child.Lock()
	defer child.Unlock()

	stat := child.Stat()
	fmt.Printf("inode %d: type=%v links=%d bytes=%d\n", stat.InodeNo, stat.Type, stat.NumLinks, stat.NumBytes)
}
