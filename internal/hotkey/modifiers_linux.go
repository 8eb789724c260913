//go:build linux

package hotkey

import "golang.design/x/hotkey"

// modifiers maps combo tokens to hotkey modifiers. On X11, Mod1 is Alt and
// Mod4 is the Super/Cmd key.
var modifiers = map[string]hotkey.Modifier{
	"ctrl":  hotkey.ModCtrl,
	"shift": hotkey.ModShift,
	"alt":   hotkey.Mod1,
	"opt":   hotkey.Mod1,
	"cmd":   hotkey.Mod4,
}
