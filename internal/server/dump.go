package server

import (
	"os"
	"sync"

	"rayview/internal/util"
)

// dumpTap appends every raw request body to a file, one JSON document
// per line, before any decoding happens. Useful for capturing traffic
// from a misbehaving sender and replaying it later.
type dumpTap struct {
	path string
	ch   chan []byte
	wg   sync.WaitGroup
	once sync.Once
}

func newDumpTap(path string) *dumpTap {
	t := &dumpTap{
		path: path,
		ch:   make(chan []byte, 256),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// write hands a body to the writer goroutine. The request path must
// never stall on disk, so a saturated tap drops the body.
func (t *dumpTap) write(body []byte) {
	buf := make([]byte, len(body))
	copy(buf, body)
	select {
	case t.ch <- buf:
	default:
		util.LogDebugf("server: dump tap saturated, dropping %d bytes", len(body))
	}
}

func (t *dumpTap) close() {
	t.once.Do(func() { close(t.ch) })
	t.wg.Wait()
}

func (t *dumpTap) run() {
	defer t.wg.Done()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		util.LogWarnf("server: cannot open dump file %s: %v", t.path, err)
		for range t.ch {
		}
		return
	}
	defer f.Close()

	for body := range t.ch {
		if _, err := f.Write(append(body, '\n')); err != nil {
			util.LogWarnf("server: dump write failed: %v", err)
		}
	}
}
