//go:build windows

package in

import (
	"os"
	"syscall"
)

func hideSignals() []os.Signal {
	return nil
}

func unloadSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
