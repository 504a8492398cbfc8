// Command corpus-prep turns speech corpora into flac chunks, manifests and
// transcript files.
//
// Usage:
//
//	corpus-prep [--env .env] [--dst ./data_dir] [-p 8] <command> [args]
//
// Commands:
//
//	prepare     - build (or verify) manifests for datasets
//	verify      - re-check existing manifests
//	combine     - build ami-combined lists from prepared AMI manifests
//	check       - decode every audio file referenced by manifests
//	convert-len - rewrite manifest durations from seconds to milliseconds
//	vocab       - word counts over manifests
//	lexicon     - letter lexicon and tokens from an ARPA model
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
