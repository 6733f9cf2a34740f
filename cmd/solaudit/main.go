package main

import (
	"os"

	"github.com/sprite-ai/solaudit/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
