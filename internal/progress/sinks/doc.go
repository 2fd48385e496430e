// Package sinks implements concrete progress consumers: human-readable log
// lines, Prometheus collectors, the in-memory status view served over HTTP,
// and the session repository. Each sink satisfies progress.Sink and is safe
// for repeated Consume/Close cycles.
package sinks
