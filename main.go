// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"spectrum/cmd"
	"spectrum/internal/build"
	"spectrum/internal/log"
)

// main builds the command line and runs it until it finishes or the process
// is interrupted. Audio devices are opened by the commands that need them.
func main() {
	// Initialize build information including version, commit hash, and build time
	if err := build.Initialize(); err != nil {
		log.Fatalf("Build: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx, os.Args[1:])
	stop()

	log.Close()
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
