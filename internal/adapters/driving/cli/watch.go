package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/logger"
)

// watchDebounce is how long a path must stay quiet before it is ingested.
var watchDebounce = 750 * time.Millisecond

var watchInitial bool

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest files dropped into a directory",
	Long: `Watches a directory and ingests new or changed files as background jobs.
Removing a file deletes its document from the index.

Hidden files and unsupported formats are ignored. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchInitial, "initial", true, "ingest files already in the directory first")
	rootCmd.AddCommand(watchCmd)
}

// fileChange is a debounced change to one file.
type fileChange struct {
	path   string
	remove bool
}

// dropFolder turns filesystem events into file changes.
type dropFolder struct {
	exts map[string]bool
}

func newDropFolder(extensions []string) *dropFolder {
	d := &dropFolder{exts: make(map[string]bool, len(extensions))}
	for _, ext := range extensions {
		d.exts[strings.ToLower(ext)] = true
	}
	return d
}

// accepts reports whether path names a supported, non-hidden file.
func (d *dropFolder) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return len(d.exts) == 0 || d.exts[strings.ToLower(filepath.Ext(base))]
}

// classify returns the change an event represents, or nil to ignore it.
func (d *dropFolder) classify(ev fsnotify.Event) *fileChange {
	if !d.accepts(ev.Name) {
		return nil
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return &fileChange{path: ev.Name, remove: true}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return nil
		}
		return &fileChange{path: ev.Name}
	default:
		return nil
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}
	dir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	ctx := cmd.Context()
	folder := newDropFolder(extensions)
	w := &watchRun{cmd: cmd}

	if watchInitial {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if !e.IsDir() && folder.accepts(path) {
				w.apply(ctx, fileChange{path: path})
			}
		}
	}
	w.printf("Watching %s (Ctrl-C to stop)\n", dir)

	pending := make(map[string]fileChange)
	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			w.wait()
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if c := folder.classify(ev); c != nil {
				pending[c.path] = *c
				timer.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch: %v", err)
		case <-timer.C:
			for path, c := range pending {
				w.apply(ctx, c)
				delete(pending, path)
			}
		}
	}
}

// watchRun applies changes and reports finished jobs.
type watchRun struct {
	cmd *cobra.Command
	mu  sync.Mutex
	wg  sync.WaitGroup
}

func (w *watchRun) printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cmd.Printf(format, args...)
}

func (w *watchRun) wait() {
	w.wg.Wait()
}

func (w *watchRun) apply(ctx context.Context, c fileChange) {
	if c.remove {
		w.remove(ctx, c.path)
		return
	}

	input, err := readFileInput(c.path)
	if err != nil {
		logger.Warn("watch: %v", err)
		return
	}
	id, err := ingestService.Submit(ctx, input)
	if errors.Is(err, domain.ErrIngestInProgress) {
		// The file changed again mid-ingestion: restart from the new content.
		_ = ingestService.Cancel(input.DocumentID)
		if _, err = ingestService.Wait(ctx, input.DocumentID); err == nil {
			id, err = ingestService.Submit(ctx, input)
		}
	}
	if err != nil {
		logger.Warn("watch: %s: %v", c.path, err)
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		job, err := ingestService.Wait(ctx, id)
		switch {
		case err != nil:
			return
		case job.State == domain.JobCompleted:
			s := job.Summary
			w.printf("ingested %s: %d chunks, %d downgraded, %d failed blocks\n",
				filepath.Base(c.path), s.ChunksIndexed, s.Downgraded, s.Failed)
		case job.State != domain.JobCancelled:
			w.printf("failed %s: %s\n", filepath.Base(c.path), job.Error)
		}
	}()
}

func (w *watchRun) remove(ctx context.Context, path string) {
	if documentService == nil {
		return
	}
	err := documentService.Delete(ctx, documentIDForPath(path))
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		logger.Warn("watch: removing %s: %v", path, err)
	default:
		w.printf("removed %s\n", filepath.Base(path))
	}
}
