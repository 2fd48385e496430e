// The main package for the ccslice executable.
package main

import (
	"os"

	"github.com/JakeFAU/ccslice/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	os.Exit(cmd.Execute())
}
