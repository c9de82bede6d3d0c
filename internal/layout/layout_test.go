package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuperblockMarshalRoundTrip(t *testing.T) {
	sb := &Superblock{
		Magic:       SuperblockMagic,
		NumBlocks:   1024,
		NumInodes:   256,
		NumLogBlks:  31,
		LogStart:    1,
		InodeStart:  32,
		BitmapStart: 96,
		DataStart:   100,
	}
	buf := MarshalSuperblock(sb)
	require.Len(t, buf, BlockSize)

	var got Superblock
	require.NoError(t, UnmarshalSuperblock(buf, &got))
	require.Equal(t, *sb, got)
}

func TestUnmarshalSuperblockShortBuffer(t *testing.T) {
	var sb Superblock
	require.ErrorIs(t, UnmarshalSuperblock(make([]byte, 4), &sb), ErrShortBuffer)
}

func TestLogHeaderMarshalRoundTrip(t *testing.T) {
	h := &LogHeader{NumBlocks: 3}
	h.BlockNo[0] = 10
	h.BlockNo[1] = 20
	h.BlockNo[2] = 30

	buf := MarshalLogHeader(h)
	require.Len(t, buf, BlockSize)

	var got LogHeader
	require.NoError(t, UnmarshalLogHeader(buf, &got))
	require.Equal(t, *h, got)
}

func TestInodeEntryMarshalRoundTrip(t *testing.T) {
	block := make([]byte, BlockSize)
	e := &InodeEntry{
		Type:     InodeRegular,
		NumLinks: 2,
		NumBytes: 4096,
		Major:    1,
		Minor:    2,
		Indirect: 77,
	}
	for i := range e.Addrs {
		e.Addrs[i] = uint32(i + 1)
	}

	PutInodeEntry(block, 3, e)

	var got InodeEntry
	GetInodeEntry(block, 3, &got)
	require.Equal(t, *e, got)
}

func TestInodeEntrySlotsDoNotOverlap(t *testing.T) {
	block := make([]byte, BlockSize)
	a := &InodeEntry{Type: InodeRegular, NumBytes: 1}
	b := &InodeEntry{Type: InodeDirectory, NumBytes: 2}
	PutInodeEntry(block, 0, a)
	PutInodeEntry(block, 1, b)

	var gotA, gotB InodeEntry
	GetInodeEntry(block, 0, &gotA)
	GetInodeEntry(block, 1, &gotB)
	require.Equal(t, *a, gotA)
	require.Equal(t, *b, gotB)
}

func TestIndirectAddrRoundTrip(t *testing.T) {
	block := make([]byte, BlockSize)
	PutIndirectAddr(block, 5, 999)
	require.Equal(t, uint32(999), GetIndirectAddr(block, 5))
}

func TestDirEntryMarshalRoundTrip(t *testing.T) {
	d := &DirEntry{InodeNo: 42}
	d.SetName("hello.txt")

	buf := MarshalDirEntry(d)
	require.Len(t, buf, DirEntrySize)

	var got DirEntry
	require.NoError(t, UnmarshalDirEntry(buf, &got))
	require.Equal(t, uint32(42), got.InodeNo)
	require.Equal(t, "hello.txt", got.NameString())
}

func TestDirEntrySetNameTruncatesAndZeroPads(t *testing.T) {
	var d DirEntry
	longName := "this-name-is-definitely-longer-than-the-limit"
	d.SetName(longName)
	require.Equal(t, longName[:FileNameMaxLength], d.NameString())
}

func TestUnmarshalDirEntryShortBuffer(t *testing.T) {
	var d DirEntry
	require.ErrorIs(t, UnmarshalDirEntry(make([]byte, 2), &d), ErrShortBuffer)
}

func TestSuperblockHelperMethods(t *testing.T) {
	sb := &Superblock{NumBlocks: 100, DataStart: 20, InodeStart: 4, BitmapStart: 16}
	require.Equal(t, uint32(80), sb.NumDataBlocks())
	require.Equal(t, sb.InodeStart+5/InodePerBlock, sb.InodeBlockNo(5))
	require.Equal(t, sb.BitmapStart+5/BitsPerBlock, sb.BitmapBlockNo(5))
}
