package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ExitInterrupted is the conventional exit status after SIGINT.
const ExitInterrupted = 130

// Interrupt is a context cancelled by the first SIGINT or SIGTERM.
//
// Cancelling a run lets in-flight handlers observe ctx.Done, marks pending
// actions cancelled and persists partial progress. A second signal while
// that is still under way exits the process, unless OnForce replaced that.
type Interrupt struct {
	context.Context

	cancel context.CancelFunc
	ch     chan os.Signal
	once   sync.Once

	mu    sync.Mutex
	sig   os.Signal
	force func()
}

// NotifyInterrupt starts watching for termination signals until Stop is called.
func NotifyInterrupt(parent context.Context) *Interrupt {
	ctx, cancel := context.WithCancel(parent)
	in := &Interrupt{
		Context: ctx,
		force:   func() { os.Exit(ExitInterrupted) },
		cancel:  cancel,
		ch:      make(chan os.Signal, 2),
	}
	signal.Notify(in.ch, os.Interrupt, syscall.SIGTERM)
	go in.watch()
	return in
}

func (in *Interrupt) watch() {
	select {
	case sig := <-in.ch:
		in.mu.Lock()
		in.sig = sig
		in.mu.Unlock()
		in.cancel()
	case <-in.Done():
		in.release()
		return
	}

	if _, ok := <-in.ch; ok {
		in.mu.Lock()
		force := in.force
		in.mu.Unlock()
		force()
	}
}

// OnForce replaces what happens on the second signal.
func (in *Interrupt) OnForce(fn func()) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.force = fn
}

// Signal returns the signal that cancelled the context, or nil.
func (in *Interrupt) Signal() os.Signal {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.sig
}

// Stop cancels the context and stops signal delivery. It is safe to call more than once.
func (in *Interrupt) Stop() {
	in.cancel()
	in.release()
}

func (in *Interrupt) release() {
	in.once.Do(func() {
		signal.Stop(in.ch)
		close(in.ch)
	})
}
