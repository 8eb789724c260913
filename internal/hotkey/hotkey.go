// Package hotkey turns a global system hotkey into edge-triggered press and
// release events for the push-to-talk loop.
package hotkey

import (
	"context"
	"fmt"
	"strings"

	"golang.design/x/hotkey"
)

// EventKind distinguishes the two edges of one key cycle.
type EventKind int

const (
	// KeyDown fires when the configured hotkey is pressed.
	KeyDown EventKind = iota

	// KeyUp fires when it is released.
	KeyUp
)

// Event is one hotkey edge.
type Event struct {
	Kind EventKind
}

// Source emits hotkey events. The process-global implementation is
// [Listener]; tests use a plain channel behind this interface.
type Source interface {
	// Events returns the stream of press/release edges. The channel closes
	// when the source shuts down.
	Events() <-chan Event
}

// Compile-time assertion that Listener satisfies Source.
var _ Source = (*Listener)(nil)

// Listener registers a global hotkey and forwards its edges.
type Listener struct {
	hk     *hotkey.Hotkey
	events chan Event
}

// NewListener parses combo (e.g., "ctrl+alt+space") and registers it as a
// global hotkey. Call [Listener.Run] to start forwarding events and
// [Listener.Close] to unregister.
func NewListener(combo string) (*Listener, error) {
	mods, key, err := Parse(combo)
	if err != nil {
		return nil, err
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("hotkey: register %q: %w", combo, err)
	}
	return &Listener{
		hk:     hk,
		events: make(chan Event, 4),
	}, nil
}

// Events implements [Source].
func (l *Listener) Events() <-chan Event { return l.events }

// Run forwards key edges until ctx is cancelled, then closes the event
// channel.
func (l *Listener) Run(ctx context.Context) {
	defer close(l.events)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.hk.Keydown():
			l.emit(ctx, Event{Kind: KeyDown})
		case <-l.hk.Keyup():
			l.emit(ctx, Event{Kind: KeyUp})
		}
	}
}

// emit sends e without blocking past ctx cancellation.
func (l *Listener) emit(ctx context.Context, e Event) {
	select {
	case l.events <- e:
	case <-ctx.Done():
	}
}

// Close unregisters the global hotkey.
func (l *Listener) Close() error {
	if err := l.hk.Unregister(); err != nil {
		return fmt.Errorf("hotkey: unregister: %w", err)
	}
	return nil
}

// keys maps combo tokens to hotkey keys.
var keys = map[string]hotkey.Key{
	"space": hotkey.KeySpace,
	"a":     hotkey.KeyA,
	"b":     hotkey.KeyB,
	"c":     hotkey.KeyC,
	"d":     hotkey.KeyD,
	"e":     hotkey.KeyE,
	"f":     hotkey.KeyF,
	"g":     hotkey.KeyG,
	"h":     hotkey.KeyH,
	"i":     hotkey.KeyI,
	"j":     hotkey.KeyJ,
	"k":     hotkey.KeyK,
	"l":     hotkey.KeyL,
	"m":     hotkey.KeyM,
	"n":     hotkey.KeyN,
	"o":     hotkey.KeyO,
	"p":     hotkey.KeyP,
	"q":     hotkey.KeyQ,
	"r":     hotkey.KeyR,
	"s":     hotkey.KeyS,
	"t":     hotkey.KeyT,
	"u":     hotkey.KeyU,
	"v":     hotkey.KeyV,
	"w":     hotkey.KeyW,
	"x":     hotkey.KeyX,
	"y":     hotkey.KeyY,
	"z":     hotkey.KeyZ,
}

// Parse splits a "+"-separated combo into modifiers and the final key.
// Tokens are case-insensitive; the last token must be the key.
func Parse(combo string) ([]hotkey.Modifier, hotkey.Key, error) {
	tokens := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")
	if len(tokens) < 2 {
		return nil, 0, fmt.Errorf("hotkey: combo %q needs at least one modifier and a key", combo)
	}

	var mods []hotkey.Modifier
	for _, tok := range tokens[:len(tokens)-1] {
		tok = strings.TrimSpace(tok)
		mod, ok := modifiers[tok]
		if !ok {
			return nil, 0, fmt.Errorf("hotkey: unknown modifier %q in %q", tok, combo)
		}
		mods = append(mods, mod)
	}

	keyTok := strings.TrimSpace(tokens[len(tokens)-1])
	key, ok := keys[keyTok]
	if !ok {
		return nil, 0, fmt.Errorf("hotkey: unknown key %q in %q", keyTok, combo)
	}
	return mods, key, nil
}
