// Command revenuectl inspects and allocates revenue document numbers held
// in Redis.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
