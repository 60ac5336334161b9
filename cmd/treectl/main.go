// Command treectl inspects and edits the ordered trees from a terminal.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(newApp(os.Stdout)).Execute(); err != nil {
		os.Exit(1)
	}
}
