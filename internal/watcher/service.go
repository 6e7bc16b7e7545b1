package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanmcp/internal/docparse"
	"github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/gitignore"
	"github.com/Aman-CERP/amanmcp/internal/health"
	"github.com/Aman-CERP/amanmcp/internal/index"
	"github.com/Aman-CERP/amanmcp/internal/queue"
	"github.com/Aman-CERP/amanmcp/internal/store"
	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

// docExtension is the only file suffix the watcher and reconciler ever
// dispatch to the Indexer; everything else is ignored at event time.
const docExtension = ".md"

// Service wires a HybridWatcher, the Health Monitor, the Deferred Queue
// and its Drainer, and the Indexer into spec.md §4.8's per-path state
// machine: Idle -> Pending (debounced) -> Dispatched, falling back to
// Deferred whenever the embedding circuit is unhealthy, and drained back
// out once the circuit recovers.
type Service struct {
	key      tenant.Key
	docsRoot string

	watcher *HybridWatcher
	indexer *index.Indexer
	store   *store.Store
	health  *health.Monitor
	queue   *queue.Queue
	drainer *queue.Drainer

	ignore *gitignore.Matcher
	logger *slog.Logger
}

// NewService constructs a Service rooted at docsRoot for tenant key.
// excludePatterns are additional gitignore-syntax patterns applied on
// top of the docs root's own .gitignore files.
func NewService(key tenant.Key, docsRoot string, ix *index.Indexer, st *store.Store, mon *health.Monitor, excludePatterns []string, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := NewHybridWatcher(Options{IgnorePatterns: excludePatterns})
	if err != nil {
		return nil, err
	}

	q := queue.New(logger)

	ignore := gitignore.New()
	for _, p := range excludePatterns {
		ignore.AddPattern(p)
	}
	if err := ignore.AddFromFile(filepath.Join(docsRoot, ".gitignore"), ""); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load root .gitignore", slog.String("error", err.Error()))
	}

	return &Service{
		key:      key,
		docsRoot: docsRoot,
		watcher:  w,
		indexer:  ix,
		store:    st,
		health:   mon,
		queue:    q,
		drainer:  queue.NewDrainer(q, mon, ix, logger),
		ignore:   ignore,
		logger:   logger,
	}, nil
}

// Start runs start-up reconciliation, then launches the file watcher and
// its dispatch loop in the background. It returns once reconciliation has
// completed; the watcher and drainer continue running until ctx is
// cancelled.
func (s *Service) Start(ctx context.Context) error {
	if err := s.Reconcile(ctx); err != nil {
		return err
	}

	go s.watchRecovery(ctx)
	go s.consumeEvents(ctx)

	go func() {
		if err := s.watcher.Start(ctx, s.docsRoot); err != nil && ctx.Err() == nil {
			s.logger.Error("file watcher stopped", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop releases the watcher's OS resources. Safe to call once Start's ctx
// has already been cancelled.
func (s *Service) Stop() error {
	return s.watcher.Stop()
}

// QueueDepth reports how many events are currently deferred, for
// diagnostics.
func (s *Service) QueueDepth() int {
	return s.queue.Count()
}

func (s *Service) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-s.watcher.Events():
			if !ok {
				return
			}
			for _, ev := range batch {
				s.handleEvent(ctx, ev)
			}
		case werr, ok := <-s.watcher.Errors():
			if !ok {
				continue
			}
			s.logger.Warn("file watcher error", slog.String("error", werr.Error()))
		}
	}
}

func (s *Service) handleEvent(ctx context.Context, ev FileEvent) {
	if ev.Operation == OpGitignoreChange {
		ignore := gitignore.New()
		for _, p := range s.watcher.opts.IgnorePatterns {
			ignore.AddPattern(p)
		}
		if err := ignore.AddFromFile(filepath.Join(s.docsRoot, ".gitignore"), ""); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to reload root .gitignore", slog.String("error", err.Error()))
		}
		s.ignore = ignore
		if err := s.Reconcile(ctx); err != nil {
			s.logger.Error("reconciliation after .gitignore change failed", slog.String("error", err.Error()))
		}
		return
	}

	relPath := filepath.ToSlash(ev.Path)
	if !s.shouldIndex(relPath, ev.IsDir) {
		return
	}

	s.dispatch(ctx, relPath, kindFor(ev.Operation))
}

func kindFor(op Operation) queue.ChangeKind {
	switch op {
	case OpDelete:
		return queue.ChangeDeleted
	case OpCreate, OpRename:
		return queue.ChangeCreated
	default:
		return queue.ChangeModified
	}
}

// shouldIndex applies spec.md §4.8's ignore filters: hidden directories,
// non-.md files, and the configured exclude patterns.
func (s *Service) shouldIndex(relPath string, isDir bool) bool {
	if isDir || relPath == "" || relPath == "." {
		return false
	}
	if !strings.EqualFold(filepath.Ext(relPath), docExtension) {
		return false
	}
	for _, part := range strings.Split(relPath, "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return !s.ignore.Match(relPath, false)
}

// dispatch implements the Pending -> Dispatched / Deferred transition: if
// the embedding circuit is unhealthy the item goes straight to the queue,
// otherwise it is processed immediately and only deferred on an
// EmbeddingUnavailable failure.
func (s *Service) dispatch(ctx context.Context, relPath string, kind queue.ChangeKind) {
	item := queue.Item{TenantKey: s.key, RelativePath: relPath, Kind: kind}

	if !s.health.IsAvailable() {
		s.queue.Enqueue(item)
		return
	}

	if err := s.indexer.Process(ctx, item); err != nil {
		if errors.GetTag(err) == errors.TagEmbeddingUnavailable {
			s.queue.Enqueue(item)
			return
		}
		s.logger.Error("failed to process document change",
			slog.String("path", relPath), slog.String("error", err.Error()))
	}
}

// watchRecovery triggers a drain every time the Health Monitor reports
// the circuit has become available again.
func (s *Service) watchRecovery(ctx context.Context) {
	sub := s.health.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub:
			if !ok {
				return
			}
			if snap.Available {
				go s.drainer.Drain(ctx)
			}
		}
	}
}

// Reconcile implements spec.md §4.8's five-step reconciliation: compare
// the Vector Store's document list against a fresh scan of the docs
// directory and dispatch the difference. Run at start-up and whenever a
// .gitignore change is observed.
func (s *Service) Reconcile(ctx context.Context) error {
	stored, err := s.store.List(ctx, s.key)
	if err != nil {
		return err
	}
	storedByPath := make(map[string]store.ListEntry, len(stored))
	for _, e := range stored {
		storedByPath[e.RelativePath] = e
	}

	onDisk, err := s.scanDocs()
	if err != nil {
		return errors.Wrap(errors.TagFileSystemError, "failed to scan docs directory", err)
	}

	type job struct {
		relPath string
		kind    queue.ChangeKind
	}
	var jobs []job
	seen := make(map[string]bool, len(onDisk))

	for _, relPath := range onDisk {
		seen[relPath] = true
		entry, ok := storedByPath[relPath]
		if !ok {
			jobs = append(jobs, job{relPath, queue.ChangeCreated})
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.docsRoot, filepath.FromSlash(relPath)))
		if err != nil {
			s.logger.Warn("reconciliation could not read file", slog.String("path", relPath), slog.String("error", err.Error()))
			continue
		}
		if docparse.HashContent(raw) != entry.ContentHash {
			jobs = append(jobs, job{relPath, queue.ChangeModified})
		}
	}
	for relPath := range storedByPath {
		if !seen[relPath] {
			jobs = append(jobs, job{relPath, queue.ChangeDeleted})
		}
	}

	if len(jobs) == 0 {
		return nil
	}
	s.logger.Info("reconciliation dispatching changes", slog.Int("count", len(jobs)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(index.DefaultConcurrency)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			s.dispatch(gctx, j.relPath, j.kind)
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) scanDocs() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.docsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, relErr := filepath.Rel(s.docsRoot, path)
		if relErr != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if s.ignore.Match(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.shouldIndex(relPath, false) {
			return nil
		}
		paths = append(paths, relPath)
		return nil
	})
	return paths, err
}
