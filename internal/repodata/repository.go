package repodata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/rpmrepo/internal/digest"
	"github.com/dshills/rpmrepo/internal/metrics"
	"github.com/dshills/rpmrepo/internal/notify"
	"github.com/dshills/rpmrepo/internal/rpmheader"
)

// Operation names used in logs, metrics and events.
const (
	OperationRebuild  = "rebuild"
	OperationAdd      = "add"
	OperationValidate = "validate"
)

// Repository generates the metadata of the repository rooted at one
// directory.
type Repository struct {
	root      string
	cfg       *settings
	log       *slog.Logger
	metrics   *metrics.Collector
	publisher notify.Publisher
	now       func() time.Time

	hashFile   func(*os.File) (string, error)
	readHeader func(*os.File) (*rpmheader.Package, error)
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger. Runs add run_id and operation attributes.
func WithLogger(log *slog.Logger) Option {
	return func(r *Repository) { r.log = log }
}

// WithMetrics records run metrics into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Repository) { r.metrics = c }
}

// WithPublisher announces every published index through p.
func WithPublisher(p notify.Publisher) Option {
	return func(r *Repository) { r.publisher = p }
}

// WithClock replaces time.Now for revisions.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithHashFunc replaces the package checksum function.
func WithHashFunc(fn func(*os.File) (string, error)) Option {
	return func(r *Repository) { r.hashFile = fn }
}

// WithHeaderReader replaces the package header reader.
func WithHeaderReader(fn func(*os.File) (*rpmheader.Package, error)) Option {
	return func(r *Repository) { r.readHeader = fn }
}

// New returns a Repository for root. The configuration is validated here
// so runs cannot fail on a bad pattern or algorithm name.
func New(root string, cfg Config, opts ...Option) (*Repository, error) {
	settings, err := cfg.compile()
	if err != nil {
		return nil, fmt.Errorf("invalid repodata config: %w", err)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root %s is not a directory", abs)
	}

	r := &Repository{
		root:       abs,
		cfg:        settings,
		log:        slog.Default(),
		publisher:  notify.Nop{},
		now:        time.Now,
		hashFile:   settings.hasher.HashFile,
		readHeader: rpmheader.Open,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New("")
	}
	return r, nil
}

// Root returns the absolute repository root.
func (r *Repository) Root() string {
	return r.root
}

// Rebuild indexes every package below the root. Packages missing from
// disk drop out of the index.
func (r *Repository) Rebuild(ctx context.Context) (*Statistics, error) {
	runID, log := r.newRun(OperationRebuild)
	candidates, err := r.discover(log)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", r.root, err)
	}
	return r.run(ctx, runID, log, OperationRebuild, candidates, nil)
}

// Add updates the index for paths only. Other packages keep their
// previous records. Paths that no longer exist are removed from the index.
func (r *Repository) Add(ctx context.Context, paths []string) (*Statistics, error) {
	runID, log := r.newRun(OperationAdd)
	candidates, keys := r.resolve(log, paths)
	return r.run(ctx, runID, log, OperationAdd, candidates, keys)
}

func (r *Repository) newRun(op string) (string, *slog.Logger) {
	runID := uuid.NewString()
	return runID, r.log.With("run_id", runID, "operation", op)
}

func (r *Repository) open(log *slog.Logger, scratch bool) (*State, error) {
	s := &State{
		root:       r.root,
		cfg:        r.cfg,
		log:        log,
		now:        r.now,
		hashFile:   r.hashFile,
		readHeader: r.readHeader,
		phase:      PhaseInitializing,
	}
	s.load()
	if scratch {
		if err := s.createScratch(); err != nil {
			s.phase = PhaseFailed
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (r *Repository) run(ctx context.Context, runID string, log *slog.Logger, op string, candidates []Candidate, restore map[string]struct{}) (*Statistics, error) {
	start := time.Now()
	s, err := r.open(log, true)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn("failed to clean up", "error", err)
		}
	}()

	if restore != nil {
		candidates, err = r.planAdd(s, log, candidates, restore)
		if err != nil {
			return nil, err
		}
	}

	log.Info("indexing packages", "candidates", len(candidates), "concurrency", r.cfg.concurrency)
	if err := s.Build(ctx, candidates); err != nil {
		return nil, err
	}
	repomd, err := s.Finish(ctx)
	if err != nil {
		return nil, err
	}

	stats := s.Statistics()
	stats.RunID = runID
	stats.Operation = op
	stats.Duration = time.Since(start)
	log.Info("index generated",
		"packages", stats.Packages,
		"reused", stats.Reused,
		"rebuilt", stats.Rebuilt,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)

	r.record(ctx, log, &stats, repomd)
	return &stats, nil
}

// planAdd restores the packages an add run leaves alone. Without a usable
// previous index there is nothing to restore them from, so the run scans
// the whole root instead and the supplied paths are picked up by the walk.
func (r *Repository) planAdd(s *State, log *slog.Logger, candidates []Candidate, keys map[string]struct{}) ([]Candidate, error) {
	loadErr := s.LoadError()
	if loadErr == nil || errors.Is(loadErr, ErrNotPublished) {
		s.RestoreUnclaimed(keys)
		return candidates, nil
	}

	log.Warn("previous index unavailable, scanning the whole repository", "error", loadErr)
	all, err := r.discover(log)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", r.root, err)
	}
	return all, nil
}

// record reports a published run. Failures here are logged only; the index
// is already in place.
func (r *Repository) record(ctx context.Context, log *slog.Logger, stats *Statistics, repomd *Repomd) {
	r.metrics.ObservePackages(metrics.ResultReused, stats.Reused)
	r.metrics.ObservePackages(metrics.ResultRebuilt, stats.Rebuilt)
	r.metrics.ObservePackages(metrics.ResultFailed, stats.Failed)
	r.metrics.ObservePackages(metrics.ResultRestored, stats.Restored)
	r.metrics.ObservePackages(metrics.ResultRemoved, stats.Removed)
	r.metrics.ObserveRun(stats.Operation, stats.Packages, stats.Duration)
	if err := r.metrics.WriteTextfile(); err != nil {
		log.Warn("failed to write metrics textfile", "error", err)
	}

	event := notify.Event{
		RunID:       stats.RunID,
		Operation:   stats.Operation,
		Repository:  r.root,
		Revision:    repomd.Revision,
		Packages:    stats.Packages,
		PublishedAt: r.now().UTC(),
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		log.Warn("failed to publish event", "error", err)
	}
}

// Report is the result of Validate.
type Report struct {
	Revision  int64       `json:"revision"`
	Packages  int         `json:"packages"`
	Filelists int         `json:"filelists"`
	Checks    []DataCheck `json:"checks"`
}

// DataCheck is the verification of one manifest entry.
type DataCheck struct {
	Type     string `json:"type"`
	Location string `json:"location"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// Problems counts the failed checks.
func (r *Report) Problems() int {
	n := 0
	for _, c := range r.Checks {
		if !c.OK {
			n++
		}
	}
	return n
}

// Validate loads the published index the way a run would and verifies the
// size and checksum of every document the manifest lists. Nothing is
// written.
func (r *Repository) Validate(ctx context.Context) (*Report, error) {
	_, log := r.newRun(OperationValidate)
	s, err := r.open(log, false)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.LoadError(); err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}

	report := &Report{
		Revision:  s.previous.Revision,
		Packages:  len(s.primaryCache),
		Filelists: len(s.filelistsCache),
	}
	for _, d := range s.previous.Data {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Checks = append(report.Checks, r.verify(d))
	}
	if n := report.Problems(); n > 0 {
		return report, fmt.Errorf("%w: %d of %d documents", ErrCorruptIndex, n, len(report.Checks))
	}
	return report, nil
}

func (r *Repository) verify(d *Data) DataCheck {
	check := DataCheck{Type: d.Type, Location: d.Location.Href}
	path := filepath.Join(r.root, filepath.FromSlash(d.Location.Href))

	info, err := os.Stat(path)
	if err != nil {
		check.Error = err.Error()
		return check
	}
	if info.Size() != d.Size {
		check.Error = fmt.Sprintf("size is %d, manifest says %d", info.Size(), d.Size)
		return check
	}
	hasher, err := digest.New(d.Checksum.Type)
	if err != nil {
		check.Error = err.Error()
		return check
	}
	sum, err := hasher.HashPath(path)
	if err != nil {
		check.Error = err.Error()
		return check
	}
	if sum != d.Checksum.Value {
		check.Error = fmt.Sprintf("%s checksum mismatch", d.Checksum.Type)
		return check
	}
	check.OK = true
	return check
}

// Status reads the published manifest.
func (r *Repository) Status() (*Repomd, error) {
	repomd := &Repomd{}
	err := ReadDocument(filepath.Join(r.root, MetadataDir, ManifestFile), repomd)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotPublished
	}
	if err != nil {
		return nil, err
	}
	return repomd, nil
}
