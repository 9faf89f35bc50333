package main

import (
	"os"

	"contractaid/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
