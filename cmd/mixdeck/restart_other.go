//go:build !unix

package main

import "errors"

// restartSelf is unsupported without exec; main exits non-zero instead and
// leaves the restart to the service manager.
func restartSelf() error {
	return errors.New("self restart not supported on this platform")
}
