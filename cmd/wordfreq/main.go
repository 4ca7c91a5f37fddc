// Command wordfreq crawls Wikipedia from the command line and prints the
// word-frequency result as JSON.
//
// Usage:
//
//	wordfreq crawl "Go (programming language)" --depth 1
//	wordfreq crawl Soda --depth 2 --percentile 80 --ignore the,a,of
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

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
