// Command dotlog syncs shell variables and aliases between hosts through an
// encrypted, append-only record log.
package main

import (
	"os"

	"github.com/roach88/dotlog/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
