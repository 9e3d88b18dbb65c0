// ./main.go
package main

import (
	"github.com/xkilldash9x/gardener-cli/cmd"
)

// main is the entry point for the gardener CLI application.
func main() {
	// Execute the root command defined in the cmd package.
	cmd.Execute()
}
