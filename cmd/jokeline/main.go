package main

import (
	"context"
	"fmt"
	"os"

	// embedded zoneinfo so US/Pacific resolves on minimal images
	_ "time/tzdata"

	"jokeline/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
