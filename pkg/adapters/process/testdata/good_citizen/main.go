// Command good_citizen is an agent that stops cleanly when interrupted.
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

	fmt.Fprintln(os.Stderr, "drafting chapter")

	select {
	case sig := <-sigs:
		fmt.Fprintf(os.Stderr, "received %s, discarding draft\n", sig)
		time.Sleep(200 * time.Millisecond)
		os.Exit(0)
	case <-time.After(10 * time.Second):
		fmt.Println(`{"output": "chapter drafted"}`)
	}
}
