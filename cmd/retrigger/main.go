// Command retrigger is a minimal embedding demo for package engine: watch
// a directory tree and print events as they're produced. Configuration
// file parsing, CLI flag handling, and process supervision are explicitly
// out of scope for the core engine; this binary exists to exercise it,
// not to be a product in its own right.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/retrigger/engine"
)

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}

	e, err := engine.New(engine.Config{
		FingerprintEnabled: true,
		IPCPath:            os.Getenv("RETRIGGER_IPC_PATH"),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "retrigger:", err)
		os.Exit(1)
	}

	if err := e.Watch(root, true); err != nil {
		fmt.Fprintln(os.Stderr, "retrigger: watch:", err)
		os.Exit(1)
	}
	if err := e.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "retrigger: start:", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-sigCh:
				return
			default:
			}
			if ev, ok := e.Poll(); ok {
				fmt.Printf("%s %s size=%d\n", ev.Kind, ev.Path, ev.Size)
			} else {
				time.Sleep(time.Millisecond)
			}
		}
	}()

	<-sigCh
	e.Stop()
	<-done
}
