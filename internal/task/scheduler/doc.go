// Package scheduler keeps the live set of alarm timers.
//
// Every durable alarm has at most one armed timer, keyed by (owner, time of
// day). Transient timers (test fires, snoozes) get a random id and are never
// persisted. A timer that fires hands an event to the FireHandler outside the
// registry lock; recurring timers are re-armed before the handler runs.
//
// Cancel is synchronous: once it returns, the cancelled timer can not fire.
// Each arm bumps a generation counter and callbacks from an older generation
// are ignored, which covers a timer whose callback was already running when
// it was stopped.
package scheduler
