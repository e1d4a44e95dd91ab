// Command route-cleanup lists and deletes routes in the route planner
// backend, typically leftovers of e2e runs.
//
//	route-cleanup list
//	route-cleanup test [--dry-run]
//	route-cleanup all [--dry-run]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
