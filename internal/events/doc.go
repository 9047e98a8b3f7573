// Package events provides an in-memory, typed fan-out of events to registered
// handlers.
//
// Schedulers use it to notify subscribers about job completion and failure
// without knowing who listens. A handler that panics is isolated: the panic
// is recovered and logged, and the remaining handlers still receive the
// event.
package events
