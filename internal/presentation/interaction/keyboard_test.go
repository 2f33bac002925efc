package interaction

import (
	"testing"
)

func TestParseInput(t *testing.T) {
	kr := &KeyboardReader{
		input: make(chan KeyEvent, 10),
		stop:  make(chan struct{}),
	}

	tests := []struct {
		name     string
		input    []byte
		expected *KeyEvent
	}{
		{
			name:     "Regular char",
			input:    []byte{'q'},
			expected: &KeyEvent{Key: 'q', Type: KeyChar},
		},
		{
			name:     "Ctrl+C",
			input:    []byte{3},
			expected: &KeyEvent{Key: 3, Type: KeyChar},
		},
		{
			name:     "Escape",
			input:    []byte{27},
			expected: &KeyEvent{Key: 27, Type: KeyEscape},
		},
		{
			name:     "Arrow up",
			input:    []byte{27, '[', 'A'},
			expected: &KeyEvent{Type: KeyUp},
		},
		{
			name:     "Arrow down",
			input:    []byte{27, '[', 'B'},
			expected: &KeyEvent{Type: KeyDown},
		},
		{
			name:     "Arrow right",
			input:    []byte{27, '[', 'C'},
			expected: &KeyEvent{Type: KeyRight},
		},
		{
			name:     "Arrow left",
			input:    []byte{27, '[', 'D'},
			expected: &KeyEvent{Type: KeyLeft},
		},
		{
			name:     "Unknown CSI sequence",
			input:    []byte{27, '[', 'Z'},
			expected: nil,
		},
		{
			name:     "Empty",
			input:    nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := kr.parseInput(tt.input)
			if tt.expected == nil {
				if event != nil {
					t.Errorf("Expected nil, got %+v", event)
				}
				return
			}
			if event == nil {
				t.Errorf("Expected %+v, got nil", tt.expected)
			} else if event.Type != tt.expected.Type || event.Key != tt.expected.Key {
				t.Errorf("Expected %+v, got %+v", tt.expected, event)
			}
		})
	}
}
