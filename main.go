// The main package for the artexin executable.
package main

import (
	"github.com/JakeFAU/artexin/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
