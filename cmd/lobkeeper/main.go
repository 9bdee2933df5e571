// Command lobkeeper replays a snapshot file and an incremental file into
// a book registry and prints a human-readable per-security level listing.
// This is the external CLI surface described alongside the core; it owns
// argument parsing and output formatting, neither of which the core
// itself is responsible for.
package main

import (
	"fmt"
	"io"
	"os"

	"lobkeeper/book"
	"lobkeeper/level"
	"lobkeeper/replay"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintf(stderr, "usage: lobkeeper <snapshot-file> <incremental-file>\n")
		return 2
	}
	snapshotPath, incrementalPath := args[0], args[1]

	d, err := replay.Open(snapshotPath, incrementalPath)
	if err != nil {
		fmt.Fprintf(stderr, "lobkeeper: %v\n", err)
		return 1
	}
	defer d.Close()

	reg := book.NewMapRegistry()
	if _, err := d.Run(reg, func(s level.Side) level.Container { return level.NewReference(s) }); err != nil {
		fmt.Fprintf(stderr, "lobkeeper: %v\n", err)
		return 1
	}

	printRegistry(stdout, reg)
	return 0
}

func printRegistry(w io.Writer, reg book.Registry) {
	ids := make([]uint64, 0, reg.Len())
	reg.Range(func(id uint64, _ *book.Book) bool {
		ids = append(ids, id)
		return true
	})
	sortUint64(ids)

	for _, id := range ids {
		b, ok := reg.Get(id)
		if !ok {
			continue
		}
		seq, _ := b.LastUpdateSeq()
		fmt.Fprintf(w, "security %d (last_update_seq=%d)\n", id, seq)
		fmt.Fprintf(w, "  bids:\n")
		for _, lv := range b.Bids.SnapshotLevels() {
			fmt.Fprintf(w, "    %.2f x %d\n", lv.Price, lv.Qty)
		}
		fmt.Fprintf(w, "  asks:\n")
		for _, lv := range b.Asks.SnapshotLevels() {
			fmt.Fprintf(w, "    %.2f x %d\n", lv.Price, lv.Qty)
		}
	}
}

// sortUint64 is a tiny insertion sort: the registry listing is a CLI
// convenience over at most a few thousand securities, not a hot path.
func sortUint64(xs []uint64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}
