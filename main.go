package main

import (
	"os"

	"mimic/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
