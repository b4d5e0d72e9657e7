package executor

import "strings"

// ModifierFlags is a bit set of held modifier keys.
type ModifierFlags uint8

const (
	ModCmd ModifierFlags = 1 << iota
	ModShift
	ModAlt
	ModCtrl
)

// Has reports whether every flag in m is set.
func (f ModifierFlags) Has(m ModifierFlags) bool { return f&m == m }

// KeyCode is a platform virtual key code (macOS ANSI layout values).
type KeyCode uint16

// KeyChord is one parsed key-combo: a key pressed while a set of modifiers
// is held. Synthesis is key-down then key-up with identical flags.
type KeyChord struct {
	Code      KeyCode
	Modifiers ModifierFlags
}

var modifierNames = map[string]ModifierFlags{
	"cmd":     ModCmd,
	"command": ModCmd,
	"shift":   ModShift,
	"alt":     ModAlt,
	"option":  ModAlt,
	"ctrl":    ModCtrl,
	"control": ModCtrl,
}

// keyCodes is the closed lookup table of synthesizable keys.
var keyCodes = map[string]KeyCode{
	"a": 0x00, "b": 0x0B, "c": 0x08, "d": 0x02, "e": 0x0E,
	"f": 0x03, "g": 0x05, "h": 0x04, "i": 0x22, "j": 0x26,
	"k": 0x28, "l": 0x25, "m": 0x2E, "n": 0x2D, "o": 0x1F,
	"p": 0x23, "q": 0x0C, "r": 0x0F, "s": 0x01, "t": 0x11,
	"u": 0x20, "v": 0x09, "w": 0x0D, "x": 0x07, "y": 0x10,
	"z": 0x06,
	"0": 0x1D, "1": 0x12, "2": 0x13, "3": 0x14, "4": 0x15,
	"5": 0x17, "6": 0x16, "7": 0x1A, "8": 0x1C, "9": 0x19,
	"enter": 0x24, "return": 0x24,
	"space": 0x31, "tab": 0x30,
	"escape": 0x35, "esc": 0x35,
	"up": 0x7E, "down": 0x7D, "left": 0x7B, "right": 0x7C,
}

// ParseKeyCombo parses a "+"-delimited, case-insensitive combo such as
// "cmd+shift+a". Every token but the last must be a known modifier; the last
// must be in the key-code table. Anything else is an invalid-payload error.
func ParseKeyCombo(combo string) (KeyChord, error) {
	var tokens []string
	for _, part := range strings.Split(strings.ToLower(combo), "+") {
		if part = strings.TrimSpace(part); part != "" {
			tokens = append(tokens, part)
		}
	}
	if len(tokens) == 0 {
		return KeyChord{}, actionErrorf(ErrCodeInvalidPayload, "invalid key_combo format: %q", combo)
	}

	var chord KeyChord
	for _, modifier := range tokens[:len(tokens)-1] {
		flag, ok := modifierNames[modifier]
		if !ok {
			return KeyChord{}, actionErrorf(ErrCodeInvalidPayload, "unsupported modifier: %q", modifier)
		}
		chord.Modifiers |= flag
	}

	key := tokens[len(tokens)-1]
	code, ok := keyCodes[key]
	if !ok {
		return KeyChord{}, actionErrorf(ErrCodeInvalidPayload, "unsupported key: %q", key)
	}
	chord.Code = code
	return chord, nil
}
