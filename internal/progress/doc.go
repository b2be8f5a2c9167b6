// Package progress carries batch lifecycle events from the scheduler to
// observers. A Hub buffers events on a background goroutine and fans them out
// in batches to pluggable sinks such as structured logs or Prometheus.
package progress
