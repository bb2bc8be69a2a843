package main

import (
	"context"
	"fmt"
	"os"

	"cafe/pkg/app"
)

// main exposes a root-level entry point so operators can simply run `go run cafe.go`.
func main() {
	if err := app.NewCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
