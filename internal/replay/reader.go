package replay

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/fsnotify/fsnotify"

	"rayview/internal/core/store"
	"rayview/internal/util"
)

// scanBufferSize accommodates journal lines carrying large dumps.
const scanBufferSize = 10 * 1024 * 1024

// ReadFile parses a JSONL journal. Unparseable lines are skipped with
// a warning; a truncated tail line from a crashed writer must not
// poison the rest of the journal.
func ReadFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)

	var records []Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := sonic.Unmarshal(line, &rec); err != nil {
			util.LogWarnf("replay: skipping journal line %d: %v", lineNo, err)
			continue
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// Collapse reduces a journal to its latest record per entry id,
// preserving first-appearance order.
func Collapse(records []Record) []Record {
	index := make(map[int64]int)
	var out []Record
	for _, rec := range records {
		if at, ok := index[rec.EntryID]; ok {
			out[at] = rec
			continue
		}
		index[rec.EntryID] = len(out)
		out = append(out, rec)
	}
	return out
}

// Load rebuilds a timeline from journal records. Folded, hidden and
// removed entries stay gone; the rest are restored in their original
// order with fresh ids. Returns how many entries were restored.
func Load(records []Record, st *store.Store) int {
	restored := 0
	for _, rec := range Collapse(records) {
		if !rec.Replayable() {
			continue
		}
		draft := rec.Draft()
		if draft.ScreenID != "" {
			st.Registry().Resolve(draft.ScreenID)
		}
		st.Restore(draft)
		restored++
	}
	return restored
}

// Follower tails a journal file, emitting each appended record. It
// reads the existing content first, then watches for writes.
type Follower struct {
	watcher *fsnotify.Watcher
	path    string
	records chan Record
	done    chan struct{}
}

// NewFollower starts tailing the journal at path.
func NewFollower(path string) (*Follower, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	f := &Follower{
		watcher: watcher,
		path:    path,
		records: make(chan Record, 100),
		done:    make(chan struct{}),
	}
	go f.run()
	return f, nil
}

// Records delivers journal records in file order. The channel closes
// when the follower stops.
func (f *Follower) Records() <-chan Record {
	return f.records
}

// Close stops tailing.
func (f *Follower) Close() error {
	close(f.done)
	return f.watcher.Close()
}

func (f *Follower) run() {
	defer close(f.records)

	file, err := os.Open(f.path)
	if err != nil {
		util.LogWarnf("replay: cannot open journal %s: %v", f.path, err)
		return
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var partial []byte

	if !f.drain(reader, &partial) {
		return
	}
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write != 0 {
				if !f.drain(reader, &partial) {
					return
				}
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			util.LogWarnf("replay: journal watch error: %v", err)
		case <-f.done:
			return
		}
	}
}

// drain reads complete lines up to the current end of file, carrying
// an unterminated tail over to the next write.
func (f *Follower) drain(reader *bufio.Reader, partial *[]byte) bool {
	for {
		chunk, err := reader.ReadBytes('\n')
		if len(chunk) > 0 {
			*partial = append(*partial, chunk...)
		}
		if err == io.EOF {
			return true
		}
		if err != nil {
			util.LogWarnf("replay: journal read failed: %v", err)
			return false
		}

		line := bytes.TrimSpace(*partial)
		*partial = (*partial)[:0]
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := sonic.Unmarshal(line, &rec); err != nil {
			util.LogWarnf("replay: skipping journal record: %v", err)
			continue
		}
		select {
		case f.records <- rec:
		case <-f.done:
			return false
		}
	}
}
