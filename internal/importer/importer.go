// Package importer watches an inbox directory and files new media into the
// vault. Files are imported once their events settle, so a file still being
// copied into the inbox is left alone until writes stop.
package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pv-go/internal/config"
	"pv-go/internal/model"
	"pv-go/internal/vault"
)

// Stats counts importer activity since construction.
type Stats struct {
	Imported int // saved into the vault, source removed
	Skipped  int // unrecognized extension or duplicate destination
	Failed   int // save failed, source left in the inbox
}

// Importer saves settled inbox files into one vault folder. Start is
// non-blocking; Stop waits for the watch loop to exit. Sweep drains files
// already present without waiting for events.
type Importer struct {
	store  *vault.Store
	logger vault.Logger
	inbox  string
	folder string
	root   model.RootKind
	settle time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	watcher *fsnotify.Watcher
	stats   Stats
}

// New creates an importer for the configured inbox and destination folder.
// The folder path carries its root segment; the root decides how extensions
// classify (jpg is an image in the photo tree, a picture in the files tree).
func New(store *vault.Store, cfg config.ImporterConfig, logger vault.Logger) (*Importer, error) {
	if cfg.Inbox == "" {
		return nil, fmt.Errorf("importer requires an inbox directory")
	}
	head, _, _ := strings.Cut(cfg.Folder, "/")
	root := model.RootKind(head)
	if root != model.PhotoRoot && root != model.FilesRoot {
		return nil, fmt.Errorf("importer folder %q is not under a vault root", cfg.Folder)
	}
	settle := time.Duration(cfg.SettleMS) * time.Millisecond
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	if logger == nil {
		logger = vault.NewNopLogger()
	}
	return &Importer{
		store:   store,
		logger:  logger,
		inbox:   cfg.Inbox,
		folder:  cfg.Folder,
		root:    root,
		settle:  settle,
		pending: make(map[string]time.Time),
	}, nil
}

// Start creates the inbox directory if needed and begins watching it. The
// watch loop runs until Stop is called or ctx is cancelled; Stop must still
// be called after cancellation to release the watcher.
func (im *Importer) Start(ctx context.Context) error {
	im.mu.Lock()
	if im.running {
		im.mu.Unlock()
		return nil
	}

	if err := os.MkdirAll(im.inbox, 0o755); err != nil {
		im.mu.Unlock()
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		im.mu.Unlock()
		return err
	}
	if err := watcher.Add(im.inbox); err != nil {
		watcher.Close()
		im.mu.Unlock()
		return fmt.Errorf("failed to watch inbox: %w", err)
	}

	im.watcher = watcher
	im.running = true
	im.stopCh = make(chan struct{})
	im.doneCh = make(chan struct{})
	stopCh, doneCh := im.stopCh, im.doneCh
	im.mu.Unlock()

	im.logger.Info("importer watching inbox", "inbox", im.inbox, "folder", im.folder)
	go im.run(ctx, watcher, stopCh, doneCh)
	return nil
}

// Stop stops the watch loop and closes the watcher.
func (im *Importer) Stop() {
	im.mu.Lock()
	if !im.running {
		im.mu.Unlock()
		return
	}
	im.running = false
	stopCh, doneCh, watcher := im.stopCh, im.doneCh, im.watcher
	im.watcher = nil
	im.mu.Unlock()

	close(stopCh)
	<-doneCh

	if err := watcher.Close(); err != nil {
		im.logger.Error("failed to close inbox watcher", "error", err)
	}
	im.logger.Info("importer stopped")
}

// Stats returns a copy of the activity counters.
func (im *Importer) Stats() Stats {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.stats
}

// Sweep imports every candidate file already sitting in the inbox. Used to
// drain a backlog before the event loop takes over.
func (im *Importer) Sweep(ctx context.Context) error {
	entries, err := os.ReadDir(im.inbox)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading inbox: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		im.importFile(ctx, filepath.Join(im.inbox, entry.Name()))
	}
	return nil
}

func (im *Importer) run(ctx context.Context, watcher *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			im.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			im.logger.Error("inbox watch error", "error", err)
		case <-ticker.C:
			im.processSettled(ctx)
		}
	}
}

// handleEvent records write activity per path. A file being copied in keeps
// refreshing its entry, pushing the settle deadline out until writes stop.
func (im *Importer) handleEvent(event fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		im.mu.Lock()
		im.pending[event.Name] = time.Now()
		im.mu.Unlock()
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		im.mu.Lock()
		delete(im.pending, event.Name)
		im.mu.Unlock()
	}
}

// processSettled imports every pending file whose last event is older than
// the settle window.
func (im *Importer) processSettled(ctx context.Context) {
	im.mu.Lock()
	now := time.Now()
	var ready []string
	for path, last := range im.pending {
		if now.Sub(last) >= im.settle {
			ready = append(ready, path)
			delete(im.pending, path)
		}
	}
	im.mu.Unlock()

	for _, path := range ready {
		im.importFile(ctx, path)
	}
}

// importFile saves one inbox file into the destination folder and removes
// the source on success. Unrecognized extensions are left in place.
func (im *Importer) importFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	fileType := model.ClassifyExtension(ext, im.root)
	if fileType == model.TypeEmpty {
		im.logger.Info("inbox file has no recognized type", "name", base)
		im.mu.Lock()
		im.stats.Skipped++
		im.mu.Unlock()
		return
	}

	payload := model.FileSource{
		Name:       strings.TrimSuffix(base, ext),
		Type:       fileType,
		SourcePath: path,
	}
	results, err := im.store.SaveItems(ctx, im.folder, []model.Payload{payload}, nil)
	if err != nil {
		im.logger.Error("inbox import failed", "name", base, "error", err)
		im.mu.Lock()
		im.stats.Failed++
		im.mu.Unlock()
		return
	}

	switch res := results[0]; res.Status {
	case vault.StatusCreated:
		if err := os.Remove(path); err != nil {
			im.logger.Warn("imported file still in inbox", "name", base, "error", err)
		}
		im.logger.Info("inbox file imported", "name", base, "id", res.File.ID)
		im.mu.Lock()
		im.stats.Imported++
		im.mu.Unlock()
	case vault.StatusExists:
		im.mu.Lock()
		im.stats.Skipped++
		im.mu.Unlock()
	default:
		im.logger.Error("inbox import failed", "name", base, "error", res.Err)
		im.mu.Lock()
		im.stats.Failed++
		im.mu.Unlock()
	}
}
