// lshdump prints the configuration and bucket statistics of a serialized
// index file.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"lshdb-go/lsh"
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s <index-file>\n", os.Args[0])
		os.Exit(2)
	}
	path := flag.Arg(0)

	index, err := lsh.LoadFile[float32](path)
	if err != nil {
		slog.Error("Error loading index", "file", path, "error", err)
		os.Exit(1)
	}
	defer index.Close()

	fmt.Println(index.Config())

	stats, err := index.Describe()
	if err != nil {
		slog.Error("Error describing index", "error", err)
		os.Exit(1)
	}
	fmt.Printf("points: %d\nbuckets: %d\nbucket length mean: %.2f stdev: %.2f min: %d max: %d\n",
		stats.Points, stats.Buckets, stats.Mean, stats.Stdev, stats.Min, stats.Max)
}
