// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for pseudopoll.
//
// Provides concurrent-safe state handling primitives including:
//   - TOML configuration with validation and a snapshot store
//   - Runtime observers for hot-reload of poll interval and log level
//   - Pool accounting published into a metrics registry
//   - State export through named debug probes
package control
