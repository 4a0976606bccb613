// Command conceptgraph inspects and maintains study-material graphs kept in
// a local BadgerDB directory.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
