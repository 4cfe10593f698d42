//go:build windows

package main

import "os"

// Windows has no user signal, so a running batch cannot be paused from the
// console.
func pauseSignals() []os.Signal {
	return nil
}

func isPauseSignal(os.Signal) bool {
	return false
}
