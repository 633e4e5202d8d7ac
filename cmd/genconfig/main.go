// genconfig writes a sample config.json with every section populated with
// working defaults.
package main

import (
	"flag"
	"fmt"
	"os"

	"consensus-trading-bot/config"
)

func main() {
	out := flag.String("o", "config.json", "output path")
	flag.Parse()

	if _, err := os.Stat(*out); err == nil {
		fmt.Fprintf(os.Stderr, "refusing to overwrite existing %s\n", *out)
		os.Exit(1)
	}

	if err := config.GenerateSampleConfig(*out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write sample config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}
