package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyCombo(t *testing.T) {
	tests := []struct {
		combo     string
		modifiers ModifierFlags
		code      KeyCode
	}{
		{"cmd+shift+a", ModCmd | ModShift, 0x00},
		{"CMD+SHIFT+A", ModCmd | ModShift, 0x00},
		{"command+option+escape", ModCmd | ModAlt, 0x35},
		{"ctrl+c", ModCtrl, 0x08},
		{"control+c", ModCtrl, 0x08},
		{"enter", 0, 0x24},
		{"return", 0, 0x24},
		{" cmd + s ", ModCmd, 0x01},
		{"shift+tab", ModShift, 0x30},
		{"cmd+right", ModCmd, 0x7C},
	}
	for _, tc := range tests {
		t.Run(tc.combo, func(t *testing.T) {
			chord, err := ParseKeyCombo(tc.combo)
			require.NoError(t, err)
			assert.Equal(t, tc.modifiers, chord.Modifiers)
			assert.Equal(t, tc.code, chord.Code)
		})
	}
}

func TestParseKeyComboRejectsUnknownTokens(t *testing.T) {
	for _, combo := range []string{"", "+", "banana", "cmd+banana", "meta+a", "f13"} {
		t.Run(combo, func(t *testing.T) {
			_, err := ParseKeyCombo(combo)
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidPayload, CodeOf(err))
		})
	}
}

func TestKeyChordScript(t *testing.T) {
	chord, err := ParseKeyCombo("cmd+shift+a")
	require.NoError(t, err)

	script := keyChordScript(chord)
	assert.Contains(t, script, "key code 0 using {command down, shift down}")
	assert.Contains(t, script, `tell application "System Events"`)

	plain := keyChordScript(KeyChord{Code: 0x24})
	assert.Contains(t, plain, "key code 36")
	assert.NotContains(t, plain, "using")
}

func TestEscapeAutomationText(t *testing.T) {
	assert.Equal(t, `say \"hi\"`, escapeAutomationText(`say "hi"`))
	assert.Equal(t, `a\\b`, escapeAutomationText(`a\b`))
	assert.Equal(t, "line one line two", escapeAutomationText("line one\nline two"))
}
