// Package main provides keelctl, an operator CLI that bootstraps a
// database connection for the delivery-config persistence core and
// exposes a handful of read/ops commands against it directly. It is not
// the HTTP/API surface: there is no server here, only a thin wrapper
// around the repositories in internal/.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
