// Command chat is an interactive terminal client. Replies stream to stdout
// as they arrive; logs go to stderr.
//
// Usage:
//
//	chat [--expert key] [--providers azure,gemini] [--docs dir]
//
// Commands inside the session:
//
//	/salir, salir, quit, exit  leave
//	/reset, /clear             forget the conversation
//	/expert [key]              list experts or switch to one
//	/help                      show help
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

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
