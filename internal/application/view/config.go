package view

import (
	"fmt"

	"rayview/internal/server"
)

// Config carries everything the view orchestrator needs.
type Config struct {
	BindAddr   string
	Version    string
	DumpFile   string
	Retention  int
	QueueDepth int

	// MergeAcrossScreens widens the follow-up merge window from
	// (origin, screen) to origin alone.
	MergeAcrossScreens bool

	// JournalPath, when set, appends every committed event to a JSONL
	// journal that the replay command can read back.
	JournalPath string
	// JournalDB, when set, mirrors the journal into a sqlite database.
	JournalDB string

	// Headless disables the terminal UI; the receiver only ingests and
	// journals. Useful under CI or as a capture daemon.
	Headless bool

	// ServerDisabled skips the HTTP listener entirely (replay mode).
	ServerDisabled bool
	// FollowPath tails a journal file as the event source instead of
	// the network (replay --follow).
	FollowPath string

	// UIRefreshRate is frames per second for the render loop.
	UIRefreshRate int
}

// Validate rejects configs that cannot run.
func (c *Config) Validate() error {
	if c.BindAddr == "" && !c.ServerDisabled {
		c.BindAddr = server.DefaultBindAddr
	}
	if c.UIRefreshRate <= 0 {
		c.UIRefreshRate = 10
	}
	if c.UIRefreshRate > 60 {
		return fmt.Errorf("ui refresh rate %d exceeds 60 fps", c.UIRefreshRate)
	}
	if c.Headless && c.ServerDisabled && c.FollowPath == "" {
		return fmt.Errorf("headless with no listener and no journal to follow has nothing to do")
	}
	return nil
}
