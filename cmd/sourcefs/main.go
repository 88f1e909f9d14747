// Command sourcefs tracks one or more source roots and streams the
// reconciled change log to its output: bulk root loads first, then
// watch-origin adds, changes and removes as they settle. It is the
// reference consumer of the in-memory virtual file system.
package main

import "os"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
