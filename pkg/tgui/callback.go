package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats inline callback data as "scope:action[:payload]".
// The payload is kept as-is and may itself contain ':'.
func Data(scope, action, payload string) (string, error) {
	d := strings.TrimSpace(scope) + ":" + strings.TrimSpace(action)
	if payload != "" {
		d += ":" + payload
	}
	if len(d) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return d, nil
}

// MustData is Data for compile-time constants; it panics on oversize input.
func MustData(scope, action, payload string) string {
	d, err := Data(scope, action, payload)
	if err != nil {
		panic(err)
	}
	return d
}

// Callback is parsed callback data.
type Callback struct {
	Scope   string
	Action  string
	Payload string
}

// ParseData splits "scope:action[:payload]". ok is false when scope or
// action is missing.
func ParseData(data string) (Callback, bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Callback{}, false
	}
	cb := Callback{Scope: parts[0], Action: parts[1]}
	if len(parts) == 3 {
		cb.Payload = parts[2]
	}
	return cb, true
}
