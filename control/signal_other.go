//go:build !unix

package control

import "os"

// There is no user signal to toggle with; pause/resume is only reachable
// through the monitor.
func toggleSignals() []os.Signal {
	return nil
}

func terminateSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
