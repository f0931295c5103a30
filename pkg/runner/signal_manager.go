package runner

import (
	"os"
	"os/signal"
	"syscall"
)

// SignalManager converts SIGINT and SIGTERM into interrupt ticks for
// WithInterruptSource. The first tick asks the run to stop after the
// current node; the second aborts it.
type SignalManager struct {
	sigs chan os.Signal
	out  chan struct{}
	done chan struct{}
}

// NewSignalManager starts listening immediately.
func NewSignalManager() *SignalManager {
	sm := &SignalManager{
		sigs: make(chan os.Signal, 1),
		out:  make(chan struct{}, 2),
		done: make(chan struct{}),
	}
	signal.Notify(sm.sigs, os.Interrupt, syscall.SIGTERM)
	go sm.loop()
	return sm
}

func (sm *SignalManager) loop() {
	for {
		select {
		case <-sm.sigs:
			select {
			case sm.out <- struct{}{}:
			default:
			}
		case <-sm.done:
			return
		}
	}
}

// C returns the interrupt source.
func (sm *SignalManager) C() <-chan struct{} {
	return sm.out
}

// Stop stops listening and restores default signal handling.
func (sm *SignalManager) Stop() {
	signal.Stop(sm.sigs)
	close(sm.done)
}
