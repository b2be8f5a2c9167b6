// The main package for the flightfares executable.
package main

import (
	"github.com/JakeFAU/flight-fare-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
