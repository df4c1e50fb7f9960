// Command caseflow runs loan cases through the case engine from the command
// line or over HTTP.
package main

import (
	"context"
	"os"

	"github.com/roach88/caseflow/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
