//go:build darwin

package hotkey

import (
	"testing"

	"golang.design/x/hotkey"
)

func TestParse(t *testing.T) {
	tests := []struct {
		combo    string
		wantMods []hotkey.Modifier
		wantKey  hotkey.Key
		wantErr  bool
	}{
		{combo: "ctrl+alt+space", wantMods: []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModOption}, wantKey: hotkey.KeySpace},
		{combo: "cmd+shift+d", wantMods: []hotkey.Modifier{hotkey.ModCmd, hotkey.ModShift}, wantKey: hotkey.KeyD},
		{combo: "Ctrl+Space", wantMods: []hotkey.Modifier{hotkey.ModCtrl}, wantKey: hotkey.KeySpace},
		{combo: "space", wantErr: true},
		{combo: "hyper+space", wantErr: true},
		{combo: "ctrl+banana", wantErr: true},
		{combo: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.combo, func(t *testing.T) {
			mods, key, err := Parse(tt.combo)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) succeeded, want error", tt.combo)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.combo, err)
			}
			if key != tt.wantKey {
				t.Errorf("key = %v, want %v", key, tt.wantKey)
			}
			if len(mods) != len(tt.wantMods) {
				t.Fatalf("mods = %v, want %v", mods, tt.wantMods)
			}
			for i := range mods {
				if mods[i] != tt.wantMods[i] {
					t.Errorf("mods[%d] = %v, want %v", i, mods[i], tt.wantMods[i])
				}
			}
		})
	}
}
