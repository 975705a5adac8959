// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, metrics and debug introspection for the memory layer.
//
// Provides:
//   - Config loading from YAML or JSON with quantity sizes
//   - A config store with reload listeners
//   - A prometheus collector over pool snapshots
//   - Named debug probes
package control
