package main

import (
	"os"

	"github.com/dgallion1/papergest/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
