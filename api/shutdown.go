// File: api/shutdown.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unified graceful shutdown contract.

package api

// GracefulShutdown is implemented by components owning process-wide state.
type GracefulShutdown interface {
	// Shutdown releases every resource held by the component.
	Shutdown() error
}
