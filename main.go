package main

import (
	"context"
	"os"

	"github.com/foodlens/foodlens/pkg/cli"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; environment variables win over file values
	_ = godotenv.Load()

	ctx := context.Background()
	if err := cli.Run(ctx, os.Args); err != nil {
		os.Exit(err.Code)
	}
}
