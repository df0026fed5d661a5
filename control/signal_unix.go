//go:build unix

package control

import (
	"os"
	"syscall"
)

func toggleSignals() []os.Signal {
	return []os.Signal{syscall.SIGUSR1}
}

func terminateSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
