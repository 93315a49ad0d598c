// Package model implements observable models shared between background jobs and
// asynchronous controllers.
//
// A Model keeps a state version and a registry of attached controllers, each stamped
// with the last version it was sent. Notify posts a message to every controller that
// is behind the current version, so each controller sees a given state change at most
// once. A controller attached with stamp 0 always receives the next notification.
//
// Job adds a cooperative run-state machine whose workload runs on its own goroutine
// and polls ShouldContinue. ListModel adds a keyed item tree whose removals wait until
// every attached controller has acknowledged them.
//
// Every Model has exactly one mutex. Blocking waits (Destroy, a paused ShouldContinue,
// RemoveItem) release it, sleep one poll interval on the model's clock, and re-check.
package model
