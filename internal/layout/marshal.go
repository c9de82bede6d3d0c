package layout

import (
	"encoding/binary"
)

// Marshal/Unmarshal pairs below encode each on-disk struct field by
// field with encoding/binary, rather than relying on encoding/gob or
// unsafe reinterpretation, so the wire layout is pinned independent of
// the host Go compiler's struct padding choices. This mirrors the
// kernel-UAPI marshal style used for fixed wire structs elsewhere in
// this codebase's lineage: manual field offsets, explicit byte order.

// MarshalSuperblock encodes a Superblock into exactly BlockSize bytes.
func MarshalSuperblock(s *Superblock) []byte {
	buf := make([]byte, BlockSize)
	binary.LittleEndian.PutUint32(buf[0:4], s.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], s.NumBlocks)
	binary.LittleEndian.PutUint32(buf[8:12], s.NumInodes)
	binary.LittleEndian.PutUint32(buf[12:16], s.NumLogBlks)
	binary.LittleEndian.PutUint32(buf[16:20], s.LogStart)
	binary.LittleEndian.PutUint32(buf[20:24], s.InodeStart)
	binary.LittleEndian.PutUint32(buf[24:28], s.BitmapStart)
	binary.LittleEndian.PutUint32(buf[28:32], s.DataStart)
	return buf
}

// UnmarshalSuperblock decodes a Superblock from a BlockSize buffer.
func UnmarshalSuperblock(buf []byte, s *Superblock) error {
	if len(buf) < 32 {
		return ErrShortBuffer
	}
	s.Magic = binary.LittleEndian.Uint32(buf[0:4])
	s.NumBlocks = binary.LittleEndian.Uint32(buf[4:8])
	s.NumInodes = binary.LittleEndian.Uint32(buf[8:12])
	s.NumLogBlks = binary.LittleEndian.Uint32(buf[12:16])
	s.LogStart = binary.LittleEndian.Uint32(buf[16:20])
	s.InodeStart = binary.LittleEndian.Uint32(buf[20:24])
	s.BitmapStart = binary.LittleEndian.Uint32(buf[24:28])
	s.DataStart = binary.LittleEndian.Uint32(buf[28:32])
	return nil
}

// MarshalLogHeader encodes a LogHeader into exactly BlockSize bytes.
func MarshalLogHeader(h *LogHeader) []byte {
	buf := make([]byte, BlockSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.NumBlocks)
	for i, b := range h.BlockNo {
		off := 4 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], b)
	}
	return buf
}

// UnmarshalLogHeader decodes a LogHeader from a BlockSize buffer.
func UnmarshalLogHeader(buf []byte, h *LogHeader) error {
	if len(buf) < 4+LogMaxSize*4 {
		return ErrShortBuffer
	}
	h.NumBlocks = binary.LittleEndian.Uint32(buf[0:4])
	for i := range h.BlockNo {
		off := 4 + i*4
		h.BlockNo[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	return nil
}

// PutInodeEntry encodes entry at its slot within a block's raw bytes
// (slot = inodeNo % InodePerBlock).
func PutInodeEntry(block []byte, slot int, e *InodeEntry) {
	off := slot * InodeEntrySize
	b := block[off : off+InodeEntrySize]
	binary.LittleEndian.PutUint16(b[0:2], uint16(e.Type))
	binary.LittleEndian.PutUint16(b[2:4], e.NumLinks)
	binary.LittleEndian.PutUint32(b[4:8], e.NumBytes)
	binary.LittleEndian.PutUint16(b[8:10], e.Major)
	binary.LittleEndian.PutUint16(b[10:12], e.Minor)
	for i, a := range e.Addrs {
		o := 12 + i*4
		binary.LittleEndian.PutUint32(b[o:o+4], a)
	}
	binary.LittleEndian.PutUint32(b[12+InodeNumDirect*4:16+InodeNumDirect*4], e.Indirect)
}

// GetInodeEntry decodes the entry at its slot within a block's raw bytes.
func GetInodeEntry(block []byte, slot int, e *InodeEntry) {
	off := slot * InodeEntrySize
	b := block[off : off+InodeEntrySize]
	e.Type = InodeType(binary.LittleEndian.Uint16(b[0:2]))
	e.NumLinks = binary.LittleEndian.Uint16(b[2:4])
	e.NumBytes = binary.LittleEndian.Uint32(b[4:8])
	e.Major = binary.LittleEndian.Uint16(b[8:10])
	e.Minor = binary.LittleEndian.Uint16(b[10:12])
	for i := range e.Addrs {
		o := 12 + i*4
		e.Addrs[i] = binary.LittleEndian.Uint32(b[o : o+4])
	}
	e.Indirect = binary.LittleEndian.Uint32(b[12+InodeNumDirect*4 : 16+InodeNumDirect*4])
}

// GetIndirectAddr reads the i'th address out of an indirect block's raw bytes.
func GetIndirectAddr(block []byte, i int) uint32 {
	off := i * 4
	return binary.LittleEndian.Uint32(block[off : off+4])
}

// PutIndirectAddr writes the i'th address into an indirect block's raw bytes.
func PutIndirectAddr(block []byte, i int, addr uint32) {
	off := i * 4
	binary.LittleEndian.PutUint32(block[off:off+4], addr)
}

// MarshalDirEntry encodes a DirEntry into exactly DirEntrySize bytes.
func MarshalDirEntry(d *DirEntry) []byte {
	buf := make([]byte, DirEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], d.InodeNo)
	copy(buf[4:], d.Name[:])
	return buf
}

// UnmarshalDirEntry decodes a DirEntry from a DirEntrySize buffer.
func UnmarshalDirEntry(buf []byte, d *DirEntry) error {
	if len(buf) < DirEntrySize {
		return ErrShortBuffer
	}
	d.InodeNo = binary.LittleEndian.Uint32(buf[0:4])
	copy(d.Name[:], buf[4:DirEntrySize])
	return nil
}
