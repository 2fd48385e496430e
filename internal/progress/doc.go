// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that the scan collector and fetch workers use to report session
// progress. It batches events on a background goroutine and fans them out to
// pluggable sinks such as log lines, Prometheus metrics, the status endpoint or
// persistent storage.
package progress
