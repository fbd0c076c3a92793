// Package logtail follows the game's log file and keeps the most recent
// lines in memory for the get_recent_logs method.
package logtail

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Logger matches logging.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Tailer watches one log file. Reads happen on the watcher goroutine; Recent
// is safe from any goroutine.
type Tailer struct {
	path    string
	watcher *fsnotify.Watcher
	logger  Logger

	mu     sync.Mutex
	lines  []string
	head   int
	count  int
	offset int64

	done chan struct{}
	once sync.Once
}

// New starts tailing path, keeping the last capacity lines. The file does
// not have to exist yet; it is picked up when created.
func New(path string, capacity int, logger Logger) (*Tailer, error) {
	if capacity <= 0 {
		capacity = 500
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: the game recreates the log file on startup and a
	// watch on the file itself would be lost with it.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	t := &Tailer{
		path:    path,
		watcher: watcher,
		logger:  logger,
		lines:   make([]string, capacity),
		done:    make(chan struct{}),
	}
	t.catchUp()
	go t.watchLoop()
	return t, nil
}

// Recent returns up to n of the newest lines, oldest first.
func (t *Tailer) Recent(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 || n > t.count {
		n = t.count
	}
	out := make([]string, 0, n)
	start := t.count - n
	for i := start; i < t.count; i++ {
		out = append(out, t.lines[(t.head+i)%len(t.lines)])
	}
	return out
}

// Close stops the watcher.
func (t *Tailer) Close() error {
	t.once.Do(func() { close(t.done) })
	return t.watcher.Close()
}

func (t *Tailer) watchLoop() {
	for {
		select {
		case <-t.done:
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if event.Name != t.path {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				t.mu.Lock()
				t.offset = 0
				t.mu.Unlock()
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				t.catchUp()
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			if t.logger != nil {
				t.logger.Printf("logtail watch error: %v", err)
			}
		}
	}
}

// catchUp reads new complete lines from the current offset.
func (t *Tailer) catchUp() {
	f, err := os.Open(t.path)
	if err != nil {
		return
	}
	defer f.Close()

	t.mu.Lock()
	offset := t.offset
	t.mu.Unlock()

	if info, err := f.Stat(); err == nil && info.Size() < offset {
		// Truncated or rotated underneath us.
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
			// Partial last line stays unread until the newline arrives.
			break
		}
		read += int64(len(line))
		t.append(line[:len(line)-1])
	}
	t.mu.Lock()
	t.offset = read
	t.mu.Unlock()
}

func (t *Tailer) append(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count < len(t.lines) {
		t.lines[(t.head+t.count)%len(t.lines)] = line
		t.count++
		return
	}
	t.lines[t.head] = line
	t.head = (t.head + 1) % len(t.lines)
}
