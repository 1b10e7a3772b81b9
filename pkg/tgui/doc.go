// Package tgui holds small Telegram UI helpers: inline keyboards, the
// "scope:action:payload" callback data format and HTML escaping for
// ParseMode="HTML" messages.
package tgui
