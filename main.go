package main

import (
	"context"
	"fmt"
	"os"

	"github.com/flowbit/invoice-agent/pkg/cli"
	"github.com/joho/godotenv"
)

func main() {
	// Optional; local development keeps credentials in .env.
	_ = godotenv.Load()

	ctx := context.Background()
	if err := cli.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Message)
		os.Exit(err.Code)
	}
}
