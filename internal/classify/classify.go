// Package classify decides how a transcript should be handled: typed out
// verbatim as dictation, sent to the assistant as a command, or applied as an
// edit instruction over selected foreign text.
//
// Command detection is deliberately narrow. A false positive silently turns
// ordinary dictation into a command, which is far more disruptive than a
// missed command, so the address pattern is anchored to the start of the
// transcript and requires either an attention word ("hey", "ok") before the
// wake word or a punctuation separator after it. A wake word appearing
// mid-sentence never matches.
//
// Wake-word equality tolerates transcription spelling drift: a word counts as
// the wake word when it matches exactly (case-insensitive) or when its Double
// Metaphone codes overlap the wake word's and the Jaro-Winkler similarity
// clears a high threshold.
package classify

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Kind is the classification outcome.
type Kind int

const (
	// KindDictation delivers the transcript verbatim.
	KindDictation Kind = iota

	// KindCommand sends the transcript to the assistant.
	KindCommand

	// KindEditSelection applies the transcript as an edit instruction over
	// the current foreign-text selection.
	KindEditSelection
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindDictation:
		return "dictation"
	case KindCommand:
		return "command"
	case KindEditSelection:
		return "edit-selection"
	default:
		return "unknown"
	}
}

const (
	// addressWindow bounds how far into the transcript the address pattern
	// may extend.
	addressWindow = 50

	// defaultPhoneticThreshold is the minimum Jaro-Winkler score for a
	// phonetically-matched wake word.
	defaultPhoneticThreshold = 0.88

	// editSelectionMin is the selection length above which a command is
	// treated as a direct edit instruction. Selected text that long is strong
	// evidence the user wants it transformed, not a conversation.
	editSelectionMin = 20
)

// attentionWords are the lead-ins that may precede the wake word.
var attentionWords = map[string]struct{}{
	"hey":  {},
	"ok":   {},
	"okay": {},
}

// Input carries everything the classifier considers for one transcript.
type Input struct {
	// Transcript is the merged transcription text.
	Transcript string

	// ForceAssistant routes to the assistant regardless of wording.
	ForceAssistant bool

	// SelectionLen is the length in characters of any currently selected
	// foreign-application text.
	SelectionLen int
}

// Decision is the classifier's verdict.
type Decision struct {
	Kind Kind

	// Query is the transcript with any address prefix stripped. For
	// dictation it equals the transcript unchanged.
	Query string
}

// Option is a functional option for configuring a [Classifier].
type Option func(*Classifier)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetic
// wake-word match. Default: 0.88.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Classifier) { c.phoneticThreshold = threshold }
}

// Classifier detects address-prefixed assistant commands. It is read-only
// after construction and safe for concurrent use.
type Classifier struct {
	wakeWords         []string
	wakeCodes         []map[string]struct{}
	phoneticThreshold float64
}

// New creates a Classifier for the given wake words (e.g., "jarvis").
func New(wakeWords []string, opts ...Option) *Classifier {
	c := &Classifier{phoneticThreshold: defaultPhoneticThreshold}
	for _, w := range wakeWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		c.wakeWords = append(c.wakeWords, w)
		c.wakeCodes = append(c.wakeCodes, metaphoneCodes(w))
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify applies the decision order: address pattern first, then the
// forceAssistant override, else dictation. Within the command path a long
// selection switches to the edit kind.
func (c *Classifier) Classify(in Input) Decision {
	if rest, ok := c.matchAddress(in.Transcript); ok {
		return Decision{Kind: commandKind(in.SelectionLen), Query: rest}
	}
	if in.ForceAssistant {
		return Decision{Kind: commandKind(in.SelectionLen), Query: strings.TrimSpace(in.Transcript)}
	}
	return Decision{Kind: KindDictation, Query: in.Transcript}
}

// commandKind picks between a general command and a selection edit.
func commandKind(selectionLen int) Kind {
	if selectionLen > editSelectionMin {
		return KindEditSelection
	}
	return KindCommand
}

// matchAddress checks whether transcript starts with an address pattern and,
// if so, returns the remainder after the prefix.
//
// Accepted shapes, anchored at offset zero:
//
//	<attention> <wake> <rest>        "hey jarvis open settings"
//	<attention>, <wake>, <rest>      "ok, jarvis, open settings"
//	<wake>[,.-] <rest>               "jarvis, open settings"
//
// A bare wake word followed only by a space is not an address: "jarvis is my
// favorite book" stays dictation.
func (c *Classifier) matchAddress(transcript string) (rest string, ok bool) {
	head := transcript
	if len(head) > addressWindow {
		head = head[:addressWindow]
	}

	pos := skipSeparators(head, 0)
	word1, end1 := nextWord(head, pos)
	if word1 == "" {
		return "", false
	}

	if _, isAttention := attentionWords[strings.ToLower(word1)]; isAttention {
		pos = skipSeparators(head, end1)
		word2, end2 := nextWord(head, pos)
		if word2 == "" || !c.isWakeWord(word2) {
			return "", false
		}
		return strings.TrimSpace(transcript[min(skipSeparators(head, end2), len(transcript)):]), true
	}

	// No attention word: the wake word itself must be followed by
	// punctuation, not just a space.
	if !c.isWakeWord(word1) || !punctuationAt(head, end1) {
		return "", false
	}
	return strings.TrimSpace(transcript[min(skipSeparators(head, end1), len(transcript)):]), true
}

// isWakeWord reports whether word matches any configured wake word, exactly
// or phonetically.
func (c *Classifier) isWakeWord(word string) bool {
	w := strings.ToLower(word)
	for i, wake := range c.wakeWords {
		if w == wake {
			return true
		}
		if codesOverlap(metaphoneCodes(w), c.wakeCodes[i]) &&
			matchr.JaroWinkler(w, wake, false) >= c.phoneticThreshold {
			return true
		}
	}
	return false
}

// isSeparator reports whether b is tolerated between address tokens.
func isSeparator(b byte) bool {
	return b == ' ' || b == ',' || b == '.' || b == '-'
}

// skipSeparators returns the first index at or after pos that is not a
// separator byte.
func skipSeparators(s string, pos int) int {
	for pos < len(s) && isSeparator(s[pos]) {
		pos++
	}
	return pos
}

// nextWord extracts the separator-delimited word starting at pos.
func nextWord(s string, pos int) (word string, end int) {
	end = pos
	for end < len(s) && !isSeparator(s[end]) {
		end++
	}
	return s[pos:end], end
}

// punctuationAt reports whether a comma, period, or hyphen occurs at pos
// before the next non-separator byte.
func punctuationAt(s string, pos int) bool {
	for pos < len(s) && isSeparator(s[pos]) {
		if s[pos] != ' ' {
			return true
		}
		pos++
	}
	return false
}

// metaphoneCodes returns the Double Metaphone code set for w.
func metaphoneCodes(w string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(w)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
