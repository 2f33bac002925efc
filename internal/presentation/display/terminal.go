package display

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"rayview/internal/core/model"
)

// Frame is everything one render needs, assembled by the view layer
// from store snapshots.
type Frame struct {
	Version     string
	BindAddr    string
	Screens     []model.Screen
	ActiveID    string
	Entries     []model.TimelineEntry // visible entries of the active screen
	SelectedIdx int                   // index into Entries, -1 for none
	ColorFilter string
	Locks       []model.Lock
	Paused      bool
	Status      string
}

// TerminalDisplay paints frames into the alternate screen buffer.
type TerminalDisplay struct {
	inAltScreen   bool
	isFirstRender bool
	sizeFn        func() (int, int)
}

func NewTerminalDisplay() *TerminalDisplay {
	return &TerminalDisplay{
		isFirstRender: true,
		sizeFn:        terminalSize,
	}
}

func terminalSize() (int, int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 40 {
		return 80, 24
	}
	return width, height
}

// EnterAlternateScreen switches to the alternate buffer and hides the
// cursor. Idempotent.
func (td *TerminalDisplay) EnterAlternateScreen() {
	if td.inAltScreen {
		return
	}
	fmt.Print(EnterAltScreen)
	fmt.Print(ClearScreen)
	fmt.Print(ClearScrollback)
	fmt.Print(MoveCursorHome)
	fmt.Print(HideCursor)
	td.inAltScreen = true
	td.isFirstRender = true
}

// ExitAlternateScreen restores the normal buffer. Idempotent.
func (td *TerminalDisplay) ExitAlternateScreen() {
	if !td.inAltScreen {
		return
	}
	fmt.Print(ClearScreen)
	fmt.Print(MoveCursorHome)
	fmt.Print(ShowCursor)
	fmt.Print(ExitAltScreen)
	td.inAltScreen = false
}

// Render paints one frame. Rendering reads only the frame, never the
// store, so a slow terminal cannot hold store locks.
func (td *TerminalDisplay) Render(frame Frame) {
	width, height := td.sizeFn()

	if td.isFirstRender {
		fmt.Print(ClearScreen)
		td.isFirstRender = false
	}
	fmt.Print(MoveCursorHome)

	lines := td.compose(frame, width, height)
	for i, line := range lines {
		fmt.Print(ClearLine)
		fmt.Print(line)
		if i < len(lines)-1 {
			fmt.Print("\n")
		}
	}
	fmt.Print(ClearToEnd)
}

// compose lays the frame out as plain lines: header, screen tabs, the
// entry window, footer.
func (td *TerminalDisplay) compose(frame Frame, width, height int) []string {
	lines := make([]string, 0, height)

	title := fmt.Sprintf("%srayview %s%s  listening on %s", Bold, frame.Version, Reset, frame.BindAddr)
	if frame.Paused {
		title += "  " + Reverse + " PAUSED " + Reset
	}
	lines = append(lines, title)
	lines = append(lines, td.screenTabs(frame, width))
	lines = append(lines, Dim+strings.Repeat("─", min(width, 120))+Reset)

	bodyHeight := height - len(lines) - 2
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	lines = append(lines, td.entryWindow(frame, width, bodyHeight)...)

	lines = append(lines, Dim+strings.Repeat("─", min(width, 120))+Reset)
	lines = append(lines, td.footer(frame, width))
	return lines
}

func (td *TerminalDisplay) screenTabs(frame Frame, width int) string {
	var b strings.Builder
	for _, screen := range frame.Screens {
		label := screen.Label
		if label == "" {
			label = screen.ID
		}
		if screen.ID == frame.ActiveID {
			b.WriteString(Reverse + " " + label + " " + Reset)
		} else {
			b.WriteString(Dim + " " + label + " " + Reset)
		}
		b.WriteString(" ")
	}
	if frame.ColorFilter != "" {
		b.WriteString(fmt.Sprintf("  filter:%s%s%s", colorCode(frame.ColorFilter), frame.ColorFilter, Reset))
	}
	return b.String()
}

// entryWindow returns bodyHeight lines showing a window of the entry
// list that keeps the selection in view, newest at the bottom.
func (td *TerminalDisplay) entryWindow(frame Frame, width, bodyHeight int) []string {
	entries := frame.Entries
	start := 0
	if len(entries) > bodyHeight {
		start = len(entries) - bodyHeight
		if frame.SelectedIdx >= 0 && frame.SelectedIdx < start {
			start = frame.SelectedIdx
		}
	}
	end := start + bodyHeight
	if end > len(entries) {
		end = len(entries)
	}

	lines := make([]string, 0, bodyHeight)
	for i := start; i < end; i++ {
		entry := entries[i]
		gutter := "  "
		if i == frame.SelectedIdx {
			gutter = Bold + "› " + Reset
		}
		line := Summarize(entry, width-2)
		if code := colorCode(entry.ColorTag); code != "" {
			line = code + line + Reset
		}
		lines = append(lines, gutter+line)
	}
	for len(lines) < bodyHeight {
		lines = append(lines, "")
	}
	return lines
}

func (td *TerminalDisplay) footer(frame Frame, width int) string {
	left := "q quit  ←/→ screens  ↑/↓ select  f filter  c clear  x remove  h hide  p pause"
	if frame.Status != "" {
		left = frame.Status
	}
	right := ""
	if len(frame.Locks) > 0 {
		names := make([]string, 0, len(frame.Locks))
		for _, lock := range frame.Locks {
			names = append(names, lock.Name)
		}
		right = "locks: " + strings.Join(names, ",")
	}
	if right == "" {
		return Dim + left + Reset
	}
	gap := width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return Dim + left + strings.Repeat(" ", gap) + right + Reset
}
