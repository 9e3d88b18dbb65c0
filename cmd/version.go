// File: cmd/version.go
package cmd

// Version is set at build time via
// -ldflags "-X github.com/xkilldash9x/gardener-cli/cmd.Version=v1.2.3".
var Version = "dev"
