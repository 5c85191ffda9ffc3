package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"seismicrop/pkg/labels"
)

func main() {
	tolerance := flag.Float64("tolerance", 4, "Largest height difference counted as agreement")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <labels1> <labels2>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}

	stores := make([]*labels.Store, 2)
	for i, path := range flag.Args() {
		points, err := labels.LoadPointCloud(path)
		if err != nil {
			log.Fatalf("Failed to load labels: %v", err)
		}
		stores[i] = labels.Build(points)
	}

	c := labels.Compare(stores[0], stores[1], *tolerance)
	fmt.Printf("Horizon comparison (tolerance %g):\n", *tolerance)
	fmt.Printf("=======================================\n")
	fmt.Printf("Mean error: %.4f\n", c.MeanError)
	fmt.Printf("Std error: %.4f\n", c.StdError)
	fmt.Printf("Labeled columns: %d / %d\n", c.Len1, c.Len2)
	fmt.Printf("Within tolerance: %d (%.2f%%)\n", c.InWindow, 100*c.RateInWindow)
	fmt.Printf("Mean heights: %.4f / %.4f\n", c.Mean1, c.Mean2)
	fmt.Printf("Only in first: %d\n", c.NotPresent1)
	fmt.Printf("Only in second: %d\n", c.NotPresent2)
}
