// Command urlvtab queries remote datasets through SQLite virtual tables.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Sergimayol/sqlite-virtual-url/internal/cli"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cli.Version, cli.Commit = version, commit

	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
