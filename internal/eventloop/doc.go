// Package eventloop provides the single-threaded cooperative scheduler the
// thumbnail pipeline and drawing monitor run on.
//
// Every callback runs on one goroutine, one at a time; timers fire by posting
// their callback to the loop, so a component never observes concurrent
// callbacks and needs no locking of its own. Manual is a deterministic,
// virtual-time implementation of the same Scheduler interface for tests.
package eventloop
