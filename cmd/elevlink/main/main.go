package main

import (
	"context"
	"os"

	"github.com/arthur-debert/elevlink/cmd/elevlink"
)

func main() {
	if err := elevlink.Execute(context.Background()); err != nil {
		os.Exit(elevlink.ExitCode(err))
	}
}
