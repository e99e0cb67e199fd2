// Command bad_citizen_ignore is an agent that ignores interrupts.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	fmt.Fprintln(os.Stderr, "drafting chapter forever")

	go func() {
		for s := range sigs {
			fmt.Fprintf(os.Stderr, "ignoring %v\n", s)
		}
	}()

	for {
		time.Sleep(time.Second)
	}
}
