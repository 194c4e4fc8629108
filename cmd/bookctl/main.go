package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	bookcmd "bookctl/internal/cli/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := bookcmd.Execute(ctx)
	stop()
	if err != nil {
		var ee *bookcmd.ExitError
		if errors.As(err, &ee) {
			if ee.Err != nil {
				fmt.Fprintln(os.Stderr, "bookctl:", ee.Err)
			}
			os.Exit(ee.Code)
		}
		fmt.Fprintln(os.Stderr, "bookctl:", err)
		os.Exit(bookcmd.ExitCLIError)
	}
	os.Exit(bookcmd.ExitOK)
}
