// SPDX-License-Identifier: Apache-2.0

// Command jsonmerge-krm is a KRM function merging root, head and update
// ConfigMaps into the head ConfigMap.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Run(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "jsonmerge-krm:", err)
		os.Exit(1)
	}
}
