package rules

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
)

// FileOp 规则文件变更类型
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
)

func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileWatcher polls a rules file and calls onChange when its modification
// time or size changes.
type FileWatcher struct {
	path     string
	interval time.Duration
	onChange func(FileOp)
	logger   *zap.Logger

	modTime time.Time
	size    int64
	exists  bool
}

// NewFileWatcher creates a watcher. A non-positive interval defaults to 5s.
func NewFileWatcher(path string, interval time.Duration, onChange func(FileOp), logger *zap.Logger) *FileWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWatcher{
		path:     path,
		interval: interval,
		onChange: onChange,
		logger:   logger.With(zap.String("component", "rules_watcher"), zap.String("path", path)),
	}
}

// Run blocks until ctx is done.
func (w *FileWatcher) Run(ctx context.Context) {
	w.snapshot()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("rules file watcher started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("rules file watcher stopped")
			return
		case <-ticker.C:
			if op, changed := w.check(); changed {
				w.logger.Info("rules file changed", zap.String("op", op.String()))
				if w.onChange != nil {
					w.onChange(op)
				}
			}
		}
	}
}

func (w *FileWatcher) snapshot() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.exists = false
		return
	}
	w.exists = true
	w.modTime = info.ModTime()
	w.size = info.Size()
}

func (w *FileWatcher) check() (FileOp, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) && w.exists {
			w.exists = false
			return FileOpRemove, true
		}
		return 0, false
	}
	if !w.exists {
		w.exists, w.modTime, w.size = true, info.ModTime(), info.Size()
		return FileOpCreate, true
	}
	if !info.ModTime().Equal(w.modTime) || info.Size() != w.size {
		w.modTime, w.size = info.ModTime(), info.Size()
		return FileOpWrite, true
	}
	return 0, false
}
