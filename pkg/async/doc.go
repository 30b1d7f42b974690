// Package async runs side effects off the caller's goroutine while keeping
// their outcome observable.
//
// The fan-out engine hands offline recipients to the notification dispatcher
// through a Group: each task returns a Future, failures are reported to the
// group's error handler instead of being dropped, and Wait lets shutdown
// block until in-flight tasks settle.
package async
