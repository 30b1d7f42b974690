// Package httpserver runs the pulse HTTP listener (REST surface and the
// WebSocket upgrade endpoint) with graceful shutdown on context cancellation
// or SIGINT/SIGTERM.
//
// http.Server.Shutdown does not touch hijacked connections, so components that
// own WebSocket sessions register a drain function with WithDrain; drains run
// before the listener is shut down.
package httpserver
