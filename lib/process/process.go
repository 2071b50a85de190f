// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helper shared by the camdelegate
// binaries. Fatal is the one place allowed to write raw text to stderr:
// it runs when run() has failed and the structured logger may not exist.
package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with status 1.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
