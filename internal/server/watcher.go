package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long the watcher waits for a burst of baseline
// writes to finish before reporting it.
const DefaultSettle = 100 * time.Millisecond

// Watcher reports baseline images added, replaced or removed in a
// directory. An update run rewrites many files at once, and each atomic
// write shows up as several events, so changes are coalesced per file
// name and delivered once the directory has been quiet for Settle.
type Watcher struct {
	Settle time.Duration

	watcher  *fsnotify.Watcher
	dir      string
	onChange func(name string)
	done     chan struct{}
	stopped  chan struct{}
	started  bool
	debug    bool
}

// NewWatcher watches dir, creating it if needed. onChange receives the
// base name of each changed .png file.
func NewWatcher(dir string, onChange func(name string), debug bool) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create baseline dir: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		Settle:   DefaultSettle,
		watcher:  fsw,
		dir:      dir,
		onChange: onChange,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		debug:    debug,
	}, nil
}

// baselineName returns the file name an event refers to, or "" when the
// event is not about a baseline image.
func baselineName(event fsnotify.Event) string {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return ""
	}
	name := filepath.Base(event.Name)
	// Temp files from atomic writes start with a dot.
	if filepath.Ext(name) != ".png" || strings.HasPrefix(name, ".") {
		return ""
	}
	return name
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	w.started = true
	go w.loop()
}

func (w *Watcher) loop() {
	defer close(w.stopped)

	pending := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name := baselineName(event)
			if name == "" {
				continue
			}
			if w.debug {
				log.Printf("[Watch] %s %s", event.Op, name)
			}
			pending[name] = struct{}{}
			timer.Reset(w.Settle)

		case <-timer.C:
			w.flush(pending)
			pending = make(map[string]struct{})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Watch] Error: %v", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) flush(pending map[string]struct{}) {
	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 1 {
		log.Printf("[Watch] %d baselines changed in %s", len(names), w.dir)
	}
	for _, name := range names {
		w.onChange(name)
	}
}

// Stop stops the watcher and waits for pending callbacks to return.
// Changes still inside the settle window are dropped.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.watcher.Close()
	if w.started {
		<-w.stopped
	}
	return err
}
