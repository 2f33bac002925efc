package display

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"rayview/internal/core/model"
	"rayview/internal/protocol"
)

// kindChips maps entry kinds to the short tag shown in the left
// gutter. Unlisted kinds fall back to the kind label itself.
var kindChips = map[protocol.Kind]string{
	protocol.KindLog:       "LOG",
	protocol.KindText:      "TXT",
	protocol.KindCustom:    "CST",
	protocol.KindBoolean:   "BOL",
	protocol.KindTable:     "TBL",
	protocol.KindTrace:     "TRC",
	protocol.KindException: "EXC",
	protocol.KindCaller:    "CLR",
	protocol.KindCount:     "CNT",
	protocol.KindMeasure:   "MSR",
	protocol.KindHTML:      "HTM",
	protocol.KindImage:     "IMG",
	protocol.KindJSON:      "JSN",
	protocol.KindPHPInfo:   "PHP",
	protocol.KindSeparator: "---",
	protocol.KindNotify:    "NTF",
	protocol.KindSize:      "SIZ",
	protocol.KindNewScreen: "SCR",
	protocol.KindUnknown:   "???",
}

func kindChip(kind protocol.Kind) string {
	if chip, ok := kindChips[kind]; ok {
		return chip
	}
	return strings.ToUpper(kind.String())
}

// Summarize renders one entry as a single timeline line of at most
// width display cells.
func Summarize(entry model.TimelineEntry, width int) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s %s ", entry.ReceivedAt.Format("15:04:05"), kindChip(entry.Kind)))

	if entry.Label != "" {
		b.WriteString(entry.Label)
		b.WriteString(": ")
	}

	switch entry.Kind {
	case protocol.KindSeparator:
		b.WriteString(strings.Repeat("─", 24))
	case protocol.KindBoolean:
		b.WriteString(boolText(entry))
	default:
		if text := entry.Content.DisplayText(); text != "" {
			b.WriteString(firstLine(text))
		}
	}

	if entry.Count > 1 || (entry.Kind == protocol.KindCount && entry.Count > 0) {
		b.WriteString(fmt.Sprintf(" ×%d", entry.Count))
	}
	if entry.Marker != "" {
		b.WriteString(" [" + entry.Marker + "]")
	}
	if entry.Origin != "" {
		b.WriteString("  ‹" + entry.Origin + "›")
	}

	return runewidth.Truncate(b.String(), width, "…")
}

func boolText(entry model.TimelineEntry) string {
	if value, ok := entry.Content.Raw["value"].(bool); ok {
		if value {
			return "true"
		}
		return "false"
	}
	return entry.Content.DisplayText()
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

// padString pads a string to a display width, emoji and wide runes
// counted correctly.
func padString(s string, width int, leftAlign bool) string {
	actual := runewidth.StringWidth(s)
	if actual >= width {
		return s
	}
	padding := strings.Repeat(" ", width-actual)
	if leftAlign {
		return s + padding
	}
	return padding + s
}
