// Package server hosts the read-only Fiber diagnostics service. It attaches the
// recover and request-id middlewares and mounts the routes that expose band,
// workload and pack record state of one install root. Nothing served here
// mutates the install root; installs and garbage collection stay CLI-only.
package server
