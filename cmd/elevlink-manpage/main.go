package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/arthur-debert/elevlink/cmd/elevlink"
	"github.com/arthur-debert/elevlink/internal/version"
)

func main() {
	rootCmd := elevlink.NewRootCmd()

	header := &doc.GenManHeader{
		Title:   "ELEVLINK",
		Section: "1",
		Source:  "elevlink " + version.Version,
		Manual:  "elevlink manual",
	}

	if err := doc.GenMan(rootCmd, header, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating man page: %v\n", err)
		os.Exit(1)
	}
}
