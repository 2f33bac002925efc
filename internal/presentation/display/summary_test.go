package display

import (
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"rayview/internal/core/model"
	"rayview/internal/protocol"
)

func entryAt(kind protocol.Kind, text string) model.TimelineEntry {
	return model.TimelineEntry{
		ID:         1,
		ReceivedAt: time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC),
		ScreenID:   "default",
		Origin:     "shop@dev",
		Kind:       kind,
		Content:    model.Content{Values: []string{text}},
	}
}

func TestSummarizeLogLine(t *testing.T) {
	line := Summarize(entryAt(protocol.KindLog, "user created"), 120)

	for _, want := range []string{"14:05:09", "LOG", "user created", "shop@dev"} {
		if !strings.Contains(line, want) {
			t.Errorf("summary %q missing %q", line, want)
		}
	}
}

func TestSummarizeCountAndMarker(t *testing.T) {
	entry := entryAt(protocol.KindLog, "cache miss")
	entry.Count = 4
	entry.Marker = "trace"

	line := Summarize(entry, 120)
	if !strings.Contains(line, "×4") {
		t.Errorf("summary %q missing count", line)
	}
	if !strings.Contains(line, "[trace]") {
		t.Errorf("summary %q missing marker", line)
	}
}

func TestSummarizeLabelPrefix(t *testing.T) {
	entry := entryAt(protocol.KindException, "division by zero")
	entry.Label = "ArithmeticError"

	line := Summarize(entry, 120)
	if !strings.Contains(line, "ArithmeticError: division by zero") {
		t.Errorf("summary %q missing labeled message", line)
	}
}

func TestSummarizeMultilineKeepsFirstLine(t *testing.T) {
	line := Summarize(entryAt(protocol.KindText, "first\nsecond\nthird"), 120)
	if strings.Contains(line, "second") {
		t.Errorf("summary %q leaked past the first line", line)
	}
}

func TestSummarizeTruncatesToWidth(t *testing.T) {
	line := Summarize(entryAt(protocol.KindLog, strings.Repeat("x", 500)), 40)
	if got := runewidth.StringWidth(line); got > 40 {
		t.Errorf("summary width %d exceeds 40", got)
	}
	if !strings.HasSuffix(line, "…") {
		t.Errorf("summary %q not marked as truncated", line)
	}
}

func TestSummarizeUnknownKindChip(t *testing.T) {
	entry := entryAt(protocol.KindUnknown, "")
	entry.Content.RawType = "quantum_flux"

	line := Summarize(entry, 120)
	if !strings.Contains(line, "???") {
		t.Errorf("summary %q missing unknown chip", line)
	}
}

func TestPadStringCountsDisplayCells(t *testing.T) {
	tests := []struct {
		in        string
		width     int
		leftAlign bool
		want      int
	}{
		{"abc", 6, true, 6},
		{"abc", 6, false, 6},
		{"日本", 6, true, 6}, // wide runes occupy two cells
		{"toolong", 3, true, 7},
	}
	for _, tt := range tests {
		got := padString(tt.in, tt.width, tt.leftAlign)
		if w := runewidth.StringWidth(got); w != tt.want {
			t.Errorf("padString(%q, %d) width = %d, want %d", tt.in, tt.width, w, tt.want)
		}
	}
}

func TestComposeFitsHeight(t *testing.T) {
	td := NewTerminalDisplay()
	frame := Frame{
		Version:  "dev",
		BindAddr: "0.0.0.0:23517",
		Screens:  []model.Screen{{ID: "default", Label: "Default"}},
		ActiveID: "default",
	}
	for i := 0; i < 100; i++ {
		frame.Entries = append(frame.Entries, entryAt(protocol.KindLog, "line"))
	}
	frame.SelectedIdx = 99

	lines := td.compose(frame, 80, 24)
	if len(lines) != 24 {
		t.Errorf("compose produced %d lines for height 24", len(lines))
	}
}
