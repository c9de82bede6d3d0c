// Command mkxvfs formats a backing file as a fresh xvfs image.
package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/gokernel/xvfs"
	"github.com/gokernel/xvfs/internal/device"
	"github.com/gokernel/xvfs/internal/layout"
	"github.com/gokernel/xvfs/internal/logging"
)

func main() {
	var (
		sizeStr   = flag.String("size", "4M", "Size of the image (e.g., 4M, 64M, 1G)")
		numInodes = flag.Uint("inodes", 256, "Number of inode slots")
		verbose   = flag.Bool("v", false, "Verbose output")
		selfTest  = flag.Bool("selftest", false, "Run a device self-test before formatting")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: mkxvfs [flags] <path>")
	}
	path := flag.Arg(0)

	size, err := parseSize(*sizeStr)
	if err != nil {
		log.Fatalf("invalid size %q: %v", *sizeStr, err)
	}
	numBlocks := uint32(size / layout.BlockSize)
	if numBlocks == 0 {
		log.Fatalf("size %s is smaller than one block (%d bytes)", *sizeStr, layout.BlockSize)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	dev, err := device.OpenFile(path, numBlocks)
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	defer dev.Close()

	if *selfTest {
		logger.Info("running device self-test", "blocks", numBlocks)
		if err := device.SelfTest(dev); err != nil {
			log.Fatalf("self-test failed: %v", err)
		}
		logger.Info("self-test passed")
	}

	opts := &xvfs.Options{NumInodes: uint32(*numInodes), Logger: logger}
	sb, err := xvfs.Format(dev, opts)
	if err != nil {
		log.Fatalf("format: %v", err)
	}

	fmt.Printf("Formatted %s: %d blocks, %d inodes\n", path, sb.NumBlocks, sb.NumInodes)
	fmt.Printf("  log:    blocks [%d, %d)\n", sb.LogStart, sb.InodeStart)
	fmt.Printf("  inodes: blocks [%d, %d)\n", sb.InodeStart, sb.BitmapStart)
	fmt.Printf("  bitmap: blocks [%d, %d)\n", sb.BitmapStart, sb.DataStart)
	fmt.Printf("  data:   blocks [%d, %d)\n", sb.DataStart, sb.NumBlocks)
}

// parseSize parses a size string like "64M", "1G", "512K".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(s)

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
