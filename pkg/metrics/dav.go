package metrics

import "time"

// DAVMetrics provides observability for the WebDAV protocol engine.
//
// Implementations collect metrics about method dispatch, request latency,
// payload throughput, and lock registry activity. The interface is
// optional: handlers fall back to a no-op implementation when given nil,
// so metrics never become a hard dependency of the protocol path.
type DAVMetrics interface {
	// RecordRequest records a completed request with the HTTP method,
	// final status code, and total processing time.
	RecordRequest(method string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight gauge for a method.
	RecordRequestStart(method string)

	// RecordRequestEnd decrements the in-flight gauge for a method.
	RecordRequestEnd(method string)

	// RecordBytesTransferred records body bytes moved by GET or PUT.
	// Direction is "read" or "write" from the backend's point of view.
	RecordBytesTransferred(direction string, bytes int64)

	// RecordLockGranted increments the granted lock counter. Shared and
	// exclusive leases are tracked separately.
	RecordLockGranted(exclusive bool)

	// RecordLockDenied increments the lock conflict counter. This counts
	// 423 responses from any method, not just LOCK.
	RecordLockDenied()
}

// NewNoopDAVMetrics returns a DAVMetrics that records nothing.
func NewNoopDAVMetrics() DAVMetrics {
	return noopDAVMetrics{}
}

type noopDAVMetrics struct{}

func (noopDAVMetrics) RecordRequest(method string, status int, duration time.Duration) {}
func (noopDAVMetrics) RecordRequestStart(method string)                                {}
func (noopDAVMetrics) RecordRequestEnd(method string)                                  {}
func (noopDAVMetrics) RecordBytesTransferred(direction string, bytes int64)            {}
func (noopDAVMetrics) RecordLockGranted(exclusive bool)                                {}
func (noopDAVMetrics) RecordLockDenied()                                               {}
