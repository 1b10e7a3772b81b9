// Package alarms keeps the alarm store and the live timers consistent.
//
// Every command goes through Service, which holds one lock for the whole
// operation: the store is written first and the timer armed second, so a
// failed write never leaves a timer without a record behind it. RestoreAll
// must complete before the first command is served.
package alarms
