package main

import (
	"context"
	"fmt"
	"os"

	"github.com/blackmichael/social-engage/internal/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return cli.NewRootCommand().ExecuteContext(context.Background())
}
