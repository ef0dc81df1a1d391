// Package inbox ingests policy documents dropped into a directory.
package inbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"hrassist/internal/platform/jobs"
)

const (
	debounceDefault = 200 * time.Millisecond
	maxFileBytes    = 2 << 20
	actor           = "inbox"
)

// Ingester stores a document under its name, replacing older content with the same name.
type Ingester interface {
	Sync(ctx context.Context, name, text, actor string) (chunks int, changed bool, err error)
	Checksums(ctx context.Context) (map[string]string, error)
}

type Enqueuer interface {
	Enqueue(jobType string, run jobs.RunFunc) bool
}

// Watcher turns new or rewritten .txt and .md files into policy documents named after the
// file. Digests are seeded from the store, so a file whose content matches what is already
// stored is skipped across restarts.
type Watcher struct {
	dir      string
	ingester Ingester
	queue    Enqueuer
	debounce time.Duration

	mu      sync.Mutex
	digests map[string]string
}

func New(dir string, ingester Ingester, queue Enqueuer) *Watcher {
	return &Watcher{
		dir:      dir,
		ingester: ingester,
		queue:    queue,
		debounce: debounceDefault,
		digests:  map[string]string{},
	}
}

// Run ingests what is already in the directory, then watches it until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.seed(ctx)

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && isPolicyFile(entry.Name()) {
			w.submit(filepath.Join(w.dir, entry.Name()))
		}
	}

	ready := map[string]bool{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			for path := range ready {
				w.submit(path)
			}
			ready = map[string]bool{}

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isPolicyFile(event.Name) {
				continue
			}
			ready[event.Name] = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("policy inbox watch error", zap.String("dir", w.dir), zap.Error(err))
		}
	}
}

func (w *Watcher) seed(ctx context.Context) {
	stored, err := w.ingester.Checksums(ctx)
	if err != nil {
		zap.L().Warn("policy inbox digests not seeded", zap.Error(err))
		return
	}
	w.mu.Lock()
	for name, sum := range stored {
		w.digests[name] = sum
	}
	w.mu.Unlock()
}

func (w *Watcher) submit(path string) {
	queued := w.queue.Enqueue(jobs.JobPolicyInbox, func(ctx context.Context) (any, error) {
		return w.ingestFile(ctx, path)
	})
	if !queued {
		zap.L().Warn("policy inbox file dropped", zap.String("path", path))
	}
}

func (w *Watcher) ingestFile(ctx context.Context, path string) (any, error) {
	text, err := readPolicyFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return map[string]any{"file": path, "skipped": "empty"}, nil
	}

	name := documentName(path)
	digest := checksum(text)
	w.mu.Lock()
	if prev, ok := w.digests[name]; ok && prev == digest {
		w.mu.Unlock()
		return map[string]any{"file": path, "skipped": "unchanged"}, nil
	}
	w.mu.Unlock()

	chunks, changed, err := w.ingester.Sync(ctx, name, text, actor)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", path, err)
	}

	w.mu.Lock()
	w.digests[name] = digest
	w.mu.Unlock()

	if !changed {
		return map[string]any{"file": path, "skipped": "unchanged"}, nil
	}
	zap.L().Info("policy inbox file ingested", zap.String("path", path), zap.Int("chunks", chunks))
	return map[string]any{"file": path, "chunks": chunks}, nil
}

func documentName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// checksum matches the digest the policy store keeps per document.
func checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

var errTooLarge = errors.New("policy file too large")

func readPolicyFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxFileBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) > maxFileBytes {
		return "", fmt.Errorf("%s: %w", path, errTooLarge)
	}
	return string(raw), nil
}

func isPolicyFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".txt", ".md":
		return true
	}
	return false
}
