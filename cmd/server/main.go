package main

import (
	"context"
	"fmt"
	"os"

	"cafe/pkg/app"
)

// main acts as a thin adapter so existing process managers can keep using cmd/server.
func main() {
	if err := app.NewCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
