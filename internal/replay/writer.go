package replay

import (
	"os"
	"sync"

	"github.com/bytedance/sonic"

	"rayview/internal/hub"
	"rayview/internal/util"
)

// Writer journals published events to a JSONL file, one record per
// line. The file survives the process, so a session can be inspected
// or replayed after the fact.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// NewWriter opens (appending) the journal file.
func NewWriter(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{file: file}, nil
}

// Append journals one record.
func (w *Writer) Append(rec Record) error {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.file.Write(append(data, '\n'))
	return err
}

// Consume journals every event delivered on the subscription until it
// is closed. Run it as a goroutine next to the render loop.
func (w *Writer) Consume(sub *hub.Subscription) {
	for ev := range sub.C() {
		if err := w.Append(FromEntry(ev.Entry)); err != nil {
			util.LogWarnf("replay: journal append failed: %v", err)
		}
	}
}

// Close flushes and closes the journal.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
