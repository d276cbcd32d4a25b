//go:build !windows

package in

import (
	"os"
	"syscall"
)

func hideSignals() []os.Signal {
	return []os.Signal{syscall.SIGHUP, syscall.SIGUSR1}
}

func unloadSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
