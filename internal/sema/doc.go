// Package sema provides the two timed synchronization primitives used by the
// socket core: a mutex whose acquisition can be bounded by a timeout, and a
// bounded counting signal (WaitCell) that readiness events can post to
// without ever blocking.
//
// Both primitives share one timeout convention: a zero duration polls once,
// a positive duration waits at most that long, and a negative duration waits
// until the supplied context is done.
package sema
