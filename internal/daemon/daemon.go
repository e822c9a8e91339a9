// Package daemon implements watch mode: it monitors the local artifact
// directories and pushes modified items to the service as they change.
//
// File system events are coalesced per artifact type over a debounce
// window, so a burst of writes (an editor save, a build step emitting
// many files) triggers one push batch per affected type instead of one
// per file.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the coalescing window applied when the config
// carries none.
const DefaultDebounce = 500 * time.Millisecond

// PushFunc pushes the modified items of one artifact type. The daemon
// invokes it once per affected type after each quiet period.
type PushFunc func(ctx context.Context, typeName string) error

// Config tunes one watch session.
type Config struct {
	// Dir is the local working directory root; each watched type lives
	// in its own subdirectory.
	Dir string

	// Types lists the artifact type names to watch.
	Types []string

	// Debounce is the quiet period required before pushing.
	Debounce time.Duration
}

// Daemon watches the local artifact directories and triggers
// modified-only pushes.
type Daemon struct {
	cfg    Config
	push   PushFunc
	logger *log.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates a watch daemon. If logger is nil, a default logger writing
// to stderr is used.
func New(cfg Config, push PushFunc, logger *log.Logger) (*Daemon, error) {
	if push == nil {
		return nil, fmt.Errorf("daemon: push function is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Daemon{
		cfg:     cfg,
		push:    push,
		logger:  logger,
		watcher: watcher,
		done:    make(chan struct{}),
	}, nil
}

// Start adds the per-type directory watches and begins processing
// events. Types whose local directory does not exist yet are skipped
// with a log line; they can be picked up by a restart after the first
// pull creates them.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon already running")
	}

	watched := 0
	for _, typeName := range d.cfg.Types {
		dir := filepath.Join(d.cfg.Dir, typeName)
		if err := d.watchTree(dir); err != nil {
			if os.IsNotExist(err) {
				d.logger.Printf("skipping %s: no local directory", typeName)
				continue
			}
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("daemon: no local artifact directories to watch")
	}

	d.running = true
	d.wg.Add(1)
	go d.loop(ctx)
	return nil
}

// watchTree adds the directory and its subdirectories to the watcher.
func (d *Daemon) watchTree(root string) error {
	if _, err := os.Stat(root); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		return d.watcher.Add(path)
	})
}

// Stop shuts the daemon down and waits for the event loop to exit.
// Stopping a daemon that never started is a no-op.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	close(d.done)
	if err := d.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}
	d.wg.Wait()
	return nil
}

// IsRunning reports whether the event loop is active.
func (d *Daemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// loop processes file system events, coalescing them per type until the
// debounce window passes without further changes, then pushes each
// affected type.
func (d *Daemon) loop(ctx context.Context) {
	defer d.wg.Done()

	pending := make(map[string]bool)
	timer := time.NewTimer(d.cfg.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			typeName, relevant := d.classify(event)
			if !relevant {
				continue
			}
			pending[typeName] = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.cfg.Debounce)

		case <-timer.C:
			d.flush(ctx, pending)
			pending = make(map[string]bool)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Printf("WARNING: watch error: %v", err)
		}
	}
}

// classify maps one file system event to its artifact type. New
// directories are added to the watch on the fly; chmod-only events and
// files outside the watched trees are ignored.
func (d *Daemon) classify(event fsnotify.Event) (string, bool) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := d.watcher.Add(event.Name); err != nil {
				d.logger.Printf("WARNING: failed to watch new directory %s: %v", event.Name, err)
			}
			return "", false
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return "", false
	}

	rel, err := filepath.Rel(d.cfg.Dir, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return "", false
	}

	typeName := parts[0]
	for _, t := range d.cfg.Types {
		if t == typeName {
			return typeName, true
		}
	}
	return "", false
}

// flush pushes every type with pending changes.
func (d *Daemon) flush(ctx context.Context, pending map[string]bool) {
	for typeName := range pending {
		d.logger.Printf("pushing modified %s", typeName)
		if err := d.push(ctx, typeName); err != nil {
			d.logger.Printf("WARNING: failed to push modified %s: %v", typeName, err)
		}
	}
}
