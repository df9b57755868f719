package main

import (
	"os"

	"instance-provision/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
