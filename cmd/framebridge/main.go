// SPDX-License-Identifier: EPL-2.0

// Command framebridge renders audio files through the framebridge nodes.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
