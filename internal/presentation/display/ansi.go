package display

// Terminal control sequences.
const (
	EnterAltScreen  = "\033[?1049h"
	ExitAltScreen   = "\033[?1049l"
	ClearScreen     = "\033[2J"
	ClearScrollback = "\033[3J"
	ClearToEnd      = "\033[J"
	ClearLine       = "\033[2K"
	MoveCursorHome  = "\033[H"
	HideCursor      = "\033[?25l"
	ShowCursor      = "\033[?25h"
	SaveCursor      = "\033[s"
	RestoreCursor   = "\033[u"

	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Reverse = "\033[7m"
)

// colorCodes maps sender color tags to foreground sequences. Tags
// outside this set render untinted.
var colorCodes = map[string]string{
	"red":    "\033[31m",
	"green":  "\033[32m",
	"yellow": "\033[33m",
	"orange": "\033[33m",
	"blue":   "\033[34m",
	"purple": "\033[35m",
	"violet": "\033[35m",
	"gray":   "\033[90m",
	"grey":   "\033[90m",
}

func colorCode(tag string) string {
	return colorCodes[tag]
}
