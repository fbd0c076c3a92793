package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ifBars/S1MCPServer-sub001/pkg/config"
)

// Level filters log output. Debug output is chatty (one line per frame and
// per command) and off by default.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger wraps the standard log.Logger with a level gate.
type Logger struct {
	*log.Logger
	level Level
}

// New returns an info-level logger writing to stdout.
func New(prefix string) *Logger {
	return &Logger{
		Logger: log.New(os.Stdout, prefix+" ", log.LstdFlags),
		level:  LevelInfo,
	}
}

// Configure applies logging settings from config: the level gate and an
// optional rolling file mirrored alongside stdout.
func (l *Logger) Configure(cfg config.LoggingConfig) error {
	if l == nil || l.Logger == nil {
		return nil
	}
	l.level = parseLevel(cfg.Level)
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o700); err != nil {
			return err
		}
		writer, err := newRollingFile(cfg.FilePath, cfg.FileMaxSize)
		if err != nil {
			return err
		}
		l.SetOutput(io.MultiWriter(os.Stdout, writer))
	}
	return nil
}

// Debugf logs only at debug level.
func (l *Logger) Debugf(format string, v ...any) {
	if l == nil || l.level > LevelDebug {
		return
	}
	l.Printf("DEBUG "+format, v...)
}

// Infof logs at info level and above.
func (l *Logger) Infof(format string, v ...any) {
	if l == nil || l.level > LevelInfo {
		return
	}
	l.Printf(format, v...)
}

// Errorf always logs.
func (l *Logger) Errorf(format string, v ...any) {
	if l == nil {
		return
	}
	l.Printf("ERROR "+format, v...)
}

// rollingFile renames the file aside once it passes max megabytes. One
// backup generation is enough for a mod log.
type rollingFile struct {
	path string
	max  int
	file *os.File
}

func newRollingFile(path string, maxMB int) (*rollingFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &rollingFile{path: path, max: maxMB, file: f}, nil
}

func (r *rollingFile) Write(p []byte) (int, error) {
	if r.max > 0 {
		if info, err := r.file.Stat(); err == nil && info.Size()+int64(len(p)) > int64(r.max)*1024*1024 {
			r.file.Close()
			os.Rename(r.path, r.path+".1")
			newFile, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return 0, err
			}
			r.file = newFile
		}
	}
	return r.file.Write(p)
}
