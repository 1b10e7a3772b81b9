// Package logx wraps zerolog with a value-type Logger and a Service whose
// sinks (console, file, Telegram chat) can be reconfigured while running.
package logx
