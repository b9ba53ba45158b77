package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Tailer follows a set of log files and feeds complete lines to the
// pipeline. Per-file byte offsets track progress; a file shrinking below
// its offset is treated as rotation and reading restarts at zero.
type Tailer struct {
	files    []string
	pipeline *Pipeline
	logger   *slog.Logger

	mu      sync.Mutex
	offsets map[string]int64
	queue   *lineQueue
}

// NewTailer prepares a tailer over the given files. Files that do not exist
// yet are watched for creation.
func NewTailer(files []string, p *Pipeline, logger *slog.Logger) *Tailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tailer{
		files:    files,
		pipeline: p,
		logger:   logger.With("component", "tailer"),
		offsets:  make(map[string]int64),
		queue:    newLineQueue(),
	}
}

// Run watches the files until ctx is cancelled. Existing content is skipped;
// only lines appended after startup are ingested, so a restart never
// re-ingests a whole log file.
func (t *Tailer) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(t.files))
	for _, f := range t.files {
		abs, err := filepath.Abs(f)
		if err != nil {
			t.logger.Warn("skipping log file", "path", f, "error", err)
			continue
		}
		watched[abs] = true

		// Watch the directory: file-level watches break across rotation.
		dir := filepath.Dir(abs)
		if err := watcher.Add(dir); err != nil {
			t.logger.Warn("cannot watch directory", "dir", dir, "error", err)
			continue
		}
		if info, err := os.Stat(abs); err == nil {
			t.offsets[abs] = info.Size()
		}
		t.logger.Info("tailing", "path", abs)
	}

	// Single consumer keeps per-file ordering intact.
	go t.consume(ctx)

	for {
		select {
		case <-ctx.Done():
			t.queue.close()
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				t.queue.close()
				return nil
			}
			abs, _ := filepath.Abs(ev.Name)
			if !watched[abs] {
				continue
			}
			switch {
			case ev.Op.Has(fsnotify.Create):
				// Rotated file recreated: start from the top.
				t.mu.Lock()
				t.offsets[abs] = 0
				t.mu.Unlock()
				t.readNew(abs)
			case ev.Op.Has(fsnotify.Write):
				t.readNew(abs)
			case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
				t.mu.Lock()
				t.offsets[abs] = 0
				t.mu.Unlock()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				t.queue.close()
				return nil
			}
			t.logger.Warn("watcher error", "error", err)
		}
	}
}

// readNew drains complete lines appended since the stored offset.
func (t *Tailer) readNew(path string) {
	t.mu.Lock()
	offset := t.offsets[path]
	t.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return
	}
	if info.Size() < offset {
		// Truncated in place.
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return
	}

	reader := bufio.NewReader(f)
	read := offset
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// Partial trailing line stays in the file until its newline
			// arrives; do not advance past it.
			break
		}
		read += int64(len(line))
		if text := strings.TrimRight(line, "\r\n"); text != "" {
			t.queue.push(text)
		}
	}

	t.mu.Lock()
	t.offsets[path] = read
	t.mu.Unlock()
}

func (t *Tailer) consume(ctx context.Context) {
	for {
		line, ok := t.queue.pop()
		if !ok {
			return
		}
		t.pipeline.Line(ctx, line)
	}
}

// lineQueue is an unbounded FIFO between the watcher loop and the single
// pipeline consumer. A burst of log writes never blocks the watcher.
type lineQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []string
	closed bool
}

func newLineQueue() *lineQueue {
	q := &lineQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *lineQueue) push(line string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, line)
	q.cond.Signal()
}

// pop blocks until a line is available or the queue closes. The tailer
// closes the queue when its context ends, which unblocks the consumer.
func (q *lineQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return "", false
	}
	line := q.items[0]
	q.items = q.items[1:]
	return line, true
}

func (q *lineQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
