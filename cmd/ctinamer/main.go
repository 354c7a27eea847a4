package main

import (
	"context"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/neomorfeo/ctinamer/internal/cli"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run loads an optional .env file and executes the CLI. Variables already
// set in the environment win over the file.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	_ = godotenv.Load()
	return cli.Execute(ctx, args, stdout, stderr)
}
