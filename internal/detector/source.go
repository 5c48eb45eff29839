package detector

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// ChangeSource delivers change notifications for a single file. Subscribe
// returns a cancel function that stops delivery.
type ChangeSource interface {
	Subscribe(path string, onChange func()) (cancel func(), err error)
}

// FSNotifySource is the default ChangeSource. It watches the parent
// directory and filters by base name, so editors that save through a
// rename are still seen.
type FSNotifySource struct {
	logger *log.Logger
}

// NewFSNotifySource creates a change source backed by fsnotify.
func NewFSNotifySource(logger *log.Logger) *FSNotifySource {
	return &FSNotifySource{logger: logger}
}

// Subscribe implements ChangeSource.
func (s *FSNotifySource) Subscribe(path string, onChange func()) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if s.logger != nil {
					s.logger.Debug("watcher error", "path", path, "err", err)
				}
			}
		}
	}()

	return func() {
		watcher.Close()
		<-done
	}, nil
}
