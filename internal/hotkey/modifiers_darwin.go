//go:build darwin

package hotkey

import "golang.design/x/hotkey"

// modifiers maps combo tokens to hotkey modifiers.
var modifiers = map[string]hotkey.Modifier{
	"ctrl":  hotkey.ModCtrl,
	"shift": hotkey.ModShift,
	"alt":   hotkey.ModOption,
	"opt":   hotkey.ModOption,
	"cmd":   hotkey.ModCmd,
}
