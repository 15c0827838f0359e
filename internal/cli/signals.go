package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// setupSignalHandler returns a context that is cancelled on the first
// SIGINT or SIGTERM, so the run stops at its next prompt or agent call
// and still locks and logs out. Later signals are reported and ignored
// until stop is called; the run's teardown is bounded by its own timeout.
func setupSignalHandler(parent context.Context, stderr io.Writer) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			fmt.Fprintf(stderr, "\nReceived %s, locking the vault and exiting...\n", sig)
			cancel()
		case <-done:
			return
		}

		for {
			select {
			case sig := <-sigChan:
				fmt.Fprintf(stderr, "\nReceived %s again, still locking the vault\n", sig)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
			cancel()
		})
	}
	return ctx, stop
}
