package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"rayview/internal/application/view"
	"rayview/internal/replay"
	"rayview/internal/util"
)

var (
	replayFollow bool
	replayDB     string
)

var replayCmd = &cobra.Command{
	Use:   "replay [journal.jsonl]",
	Short: "Inspect a recorded session",
	Long: `Rebuilds the timeline from a journal written with --journal (or
--journal-db) and opens it in the terminal view, without listening for
new payloads.

Examples:
  rayview replay ~/session.jsonl           # Browse a recorded session
  rayview replay ~/session.jsonl --follow  # Tail a journal another receiver is writing
  rayview replay --db ~/session.sqlite     # Browse a sqlite journal`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().BoolVar(&replayFollow, "follow", false,
		"Keep tailing the journal for new events")
	replayCmd.Flags().StringVar(&replayDB, "db", "",
		"Read from a sqlite journal instead of a JSONL file")
}

func runReplay(cmd *cobra.Command, args []string) error {
	initLogging()

	journal := ""
	if len(args) == 1 {
		journal = expandPath(args[0])
	}
	if journal == "" && replayDB == "" {
		return fmt.Errorf("a journal file or --db is required")
	}
	if replayFollow && journal == "" {
		return fmt.Errorf("--follow needs a JSONL journal file")
	}

	config := &view.Config{
		Version:        version,
		ServerDisabled: true,
		UIRefreshRate:  refreshPerSecond,
	}
	if replayFollow {
		config.FollowPath = journal
	}

	orchestrator, err := view.NewOrchestrator(config)
	if err != nil {
		return err
	}

	// In follow mode the follower reads the file from the start; a
	// separate preload would double every entry.
	if !replayFollow {
		records, err := loadRecords(journal)
		if err != nil {
			return err
		}
		restored := replay.Load(records, orchestrator.Store())
		util.LogInfof("replay: restored %d entries from journal", restored)
	}

	ctx, cancel := signalContext()
	defer cancel()
	return orchestrator.Run(ctx)
}

func loadRecords(journal string) ([]replay.Record, error) {
	if replayDB != "" {
		sink, err := replay.OpenSink(context.Background(), expandPath(replayDB))
		if err != nil {
			return nil, err
		}
		defer sink.Close()
		return sink.ReadAll(context.Background())
	}
	return replay.ReadFile(journal)
}
