package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"rayview/internal/application/view"
	"rayview/internal/server"
	"rayview/internal/util"
)

// version is stamped by the build; "dev" otherwise.
var version = "dev"

var (
	// Logging related
	debug bool

	// Listener configuration
	bindAddr string
	dumpFile string

	// Timeline configuration
	retention          int
	queueDepth         int
	mergeAcrossScreens bool

	// Journaling
	journalPath string
	journalDB   string

	// UI
	headless         bool
	refreshPerSecond int

	rootCmd = &cobra.Command{
		Use:   "rayview [flags]",
		Short: "Local receiver for debugging payloads",
		Long: `rayview listens for structured debugging payloads sent by application
instrumentation and shows them as a live timeline in the terminal.

Applications post JSON payloads to the receiver; rayview normalizes
them into timeline entries, folds follow-up counts and traces into the
message they belong to, and partitions entries into screens.

Examples:
  rayview                                  # Listen on 0.0.0.0:23517
  rayview --bind 127.0.0.1:23517           # Listen on loopback only
  rayview --journal ~/session.jsonl        # Record the session for later replay
  rayview --headless --journal s.jsonl     # Capture without a UI
  rayview replay ~/session.jsonl           # Inspect a recorded session`,
		RunE: runServe,
	}
)

const defaultLogFile = "~/.rayview/logs/app.log"

func init() {
	rootCmd.Flags().StringVar(&bindAddr, "bind", server.DefaultBindAddr,
		"Listen address (also via RAYVIEW_BIND)")
	rootCmd.Flags().StringVar(&dumpFile, "dump-file", "",
		"Append every raw request body to this file before decoding")

	rootCmd.Flags().IntVar(&retention, "retention", 0,
		"In-memory entry cap per receiver (0 = default 1024)")
	rootCmd.Flags().IntVar(&queueDepth, "queue-depth", 0,
		"Bounded ingestion queue depth (0 = default 256)")
	rootCmd.Flags().BoolVar(&mergeAcrossScreens, "merge-across-screens", false,
		"Fold follow-up payloads across screens instead of per screen")

	rootCmd.Flags().StringVar(&journalPath, "journal", "",
		"Record committed events to this JSONL journal")
	rootCmd.Flags().StringVar(&journalDB, "journal-db", "",
		"Mirror the journal into this sqlite database")

	rootCmd.Flags().BoolVar(&headless, "headless", false,
		"Run without the terminal UI (ingest and journal only)")
	rootCmd.Flags().IntVar(&refreshPerSecond, "refresh-per-second", 10,
		"UI refresh rate in frames per second (1-60)")

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	initLogging()

	// The environment variable only applies when the flag was not set
	// explicitly.
	if !cmd.Flags().Changed("bind") {
		if env := strings.TrimSpace(os.Getenv("RAYVIEW_BIND")); env != "" {
			bindAddr = env
		}
	}

	config := &view.Config{
		BindAddr:           bindAddr,
		Version:            version,
		DumpFile:           expandPath(dumpFile),
		Retention:          retention,
		QueueDepth:         queueDepth,
		MergeAcrossScreens: mergeAcrossScreens,
		JournalPath:        expandPath(journalPath),
		JournalDB:          expandPath(journalDB),
		Headless:           headless,
		UIRefreshRate:      refreshPerSecond,
	}

	orchestrator, err := view.NewOrchestrator(config)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return orchestrator.Run(ctx)
}

func Execute() error {
	return rootCmd.Execute()
}

// Helper functions

func initLogging() {
	logLevel := "info"
	if debug {
		logLevel = "debug"
	}
	logFile := expandPath(defaultLogFile)
	_ = ensureDir(filepath.Dir(logFile))
	util.InitLogger(logLevel, logFile, debug)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func expandPath(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
