package repodata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/rpmrepo/internal/compress"
	"github.com/dshills/rpmrepo/internal/lazy"
	"github.com/dshills/rpmrepo/internal/rpmheader"
)

const (
	// MetadataDir is the published metadata directory below the root.
	MetadataDir = "repodata"
	// ManifestFile is the manifest inside MetadataDir.
	ManifestFile = "repomd.xml"

	scratchPrefix = ".repodata_"
)

// Phase is the lifecycle position of a State.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseBuilding
	PhaseFinalizing
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseBuilding:
		return "building"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Candidate is a package file and the href it is indexed under.
type Candidate struct {
	Path    string
	RelPath string
}

// Failure records a package left out of the index.
type Failure struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// State is one generation run: the previous index loaded as caches, the
// new documents being built and the scratch directory they are written to.
type State struct {
	root string
	cfg  *settings
	log  *slog.Logger
	now  func() time.Time

	hashFile   func(*os.File) (string, error)
	readHeader func(*os.File) (*rpmheader.Package, error)

	phase     Phase
	lock      *fileLock
	scratch   string
	published bool
	loadErr   error
	previous  *Repomd

	// Caches of the previous index, consumed as files claim entries.
	cacheMu        sync.Mutex
	primaryCache   map[string]*Package
	filelistsCache map[string]*FilelistPackage

	docMu     sync.Mutex
	primary   *Primary
	filelists *Filelists

	statsMu  sync.Mutex
	stats    Statistics
	failures []Failure
}

// Statistics summarises a run.
type Statistics struct {
	RunID     string        `json:"run_id"`
	Operation string        `json:"operation"`
	Revision  int64         `json:"revision"`
	Packages  int           `json:"packages"`
	Reused    int           `json:"reused"`
	Rebuilt   int           `json:"rebuilt"`
	Restored  int           `json:"restored"`
	Removed   int           `json:"removed"`
	Failed    int           `json:"failed"`
	Failures  []Failure     `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Phase returns the current lifecycle phase.
func (s *State) Phase() Phase {
	return s.phase
}

// LoadError is the reason the previous index could not be used, if any.
func (s *State) LoadError() error {
	return s.loadErr
}

func (s *State) metadataDir() string {
	return filepath.Join(s.root, MetadataDir)
}

// load locks the published manifest and reads the previous documents into
// the caches. Every failure leaves the caches empty and is kept in loadErr.
func (s *State) load() {
	s.primaryCache = make(map[string]*Package)
	s.filelistsCache = make(map[string]*FilelistPackage)

	manifest := filepath.Join(s.metadataDir(), ManifestFile)
	lock, err := tryLock(manifest)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("no previous index, building from scratch")
		s.loadErr = ErrNotPublished
		return
	}
	if err != nil {
		s.log.Warn("cannot lock previous index, building from scratch", "error", err)
		s.loadErr = err
		return
	}
	s.lock = lock

	if err := s.loadPrevious(manifest); err != nil {
		s.log.Warn("cannot read previous index, building from scratch", "error", err)
		s.loadErr = err
		clear(s.primaryCache)
		clear(s.filelistsCache)
		return
	}
	s.log.Info("loaded previous index",
		"packages", len(s.primaryCache),
		"filelists", len(s.filelistsCache),
	)
}

func (s *State) loadPrevious(manifest string) error {
	repomd := &Repomd{}
	if err := ReadDocument(manifest, repomd); err != nil {
		return err
	}
	s.previous = repomd

	entry := repomd.Find(DataPrimary)
	if entry == nil {
		return fmt.Errorf("%s lists no %s data", ManifestFile, DataPrimary)
	}
	primary := &Primary{}
	if err := ReadDocument(s.hrefPath(entry.Location.Href), primary); err != nil {
		return err
	}
	for _, pkg := range primary.Packages {
		s.primaryCache[pkg.Location.Href] = pkg
	}

	if !s.cfg.generateFilelists {
		return nil
	}
	entry = repomd.Find(DataFilelists)
	if entry == nil {
		s.log.Warn("previous index has no filelists, rebuilding them from headers")
		return nil
	}
	filelists := &Filelists{}
	if err := ReadDocument(s.hrefPath(entry.Location.Href), filelists); err != nil {
		return err
	}
	for _, pkg := range filelists.Packages {
		s.filelistsCache[pkg.PkgID] = pkg
	}
	return nil
}

func (s *State) hrefPath(href string) string {
	return filepath.Join(s.root, filepath.FromSlash(href))
}

// createScratch makes the directory the new index is written to. It lives
// next to repodata/ so the final rename stays on one filesystem.
func (s *State) createScratch() error {
	dir, err := os.MkdirTemp(s.root, scratchPrefix)
	if err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	s.scratch = dir
	s.primary = NewPrimary()
	if s.cfg.generateFilelists {
		s.filelists = NewFilelists()
	}
	s.log.Debug("building new index", "scratch", dir)
	return nil
}

// RestoreUnclaimed moves every cached record into the new documents except
// those whose href is in keys. The excepted records stay cached so the
// files being re-added can still reuse them.
func (s *State) RestoreUnclaimed(keys map[string]struct{}) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.docMu.Lock()
	defer s.docMu.Unlock()

	for href, pkg := range s.primaryCache {
		s.primary.Add(pkg)
		delete(s.primaryCache, href)
	}
	evicted := s.primary.PartitionOut(func(pkg *Package) bool {
		_, claimed := keys[pkg.Location.Href]
		return !claimed
	})
	evictedSums := make(map[string]struct{}, len(evicted))
	for _, pkg := range evicted {
		s.primaryCache[pkg.Location.Href] = pkg
		evictedSums[pkg.Checksum.Value] = struct{}{}
	}

	if s.filelists != nil {
		for sum, pkg := range s.filelistsCache {
			s.filelists.Add(pkg)
			delete(s.filelistsCache, sum)
		}
		for _, pkg := range s.filelists.PartitionOut(func(pkg *FilelistPackage) bool {
			_, claimed := evictedSums[pkg.PkgID]
			return !claimed
		}) {
			s.filelistsCache[pkg.PkgID] = pkg
		}
	}

	s.statsMu.Lock()
	s.stats.Restored = s.primary.Len()
	s.statsMu.Unlock()
	s.log.Info("restored unclaimed packages", "restored", s.primary.Len(), "evicted", len(evicted))
}

// Build processes candidates on a bounded worker pool. Per-file failures
// are recorded, never returned; the error is only the context's.
func (s *State) Build(ctx context.Context, candidates []Candidate) error {
	s.phase = PhaseBuilding

	var g errgroup.Group
	g.SetLimit(s.cfg.concurrency)
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := s.AddFile(c.Path, c.RelPath); err != nil {
				s.recordFailure(err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		s.phase = PhaseFailed
		return err
	}
	return nil
}

// AddFile indexes one package file under relPath. The primary record is
// reused from the cache when size and modification time are unchanged;
// otherwise the file is hashed and its header parsed. Both records are
// resolved before either is inserted.
func (s *State) AddFile(path, relPath string) (err error) {
	file := lazy.New(func() (*os.File, error) { return os.Open(path) })
	defer func() {
		if file.Done() {
			f, _ := file.Get()
			_ = f.Close()
		}
	}()
	info := lazy.New(func() (os.FileInfo, error) { return os.Stat(path) })
	checksum := lazy.New(func() (string, error) {
		f, err := file.Get()
		if err != nil {
			return "", err
		}
		return s.hashFile(f)
	})
	header := lazy.New(func() (*rpmheader.Package, error) {
		f, err := file.Get()
		if err != nil {
			return nil, err
		}
		return s.readHeader(f)
	})

	defer func() {
		if err != nil {
			pe := &PackageError{Path: path, RelPath: relPath, Err: err}
			if header.Done() {
				hdr, _ := header.Get()
				pe.Name = hdr.NEVRA()
			}
			err = pe
		}
	}()

	pkg, reused, err := s.resolvePrimary(relPath, info, checksum, header)
	if err != nil {
		return err
	}

	var files *FilelistPackage
	if s.filelists != nil {
		if files, err = s.resolveFilelist(pkg, header); err != nil {
			return err
		}
	}

	s.docMu.Lock()
	s.primary.Add(pkg)
	if files != nil {
		s.filelists.Add(files)
	}
	s.docMu.Unlock()

	s.statsMu.Lock()
	if reused {
		s.stats.Reused++
	} else {
		s.stats.Rebuilt++
	}
	s.statsMu.Unlock()
	return nil
}

func (s *State) resolvePrimary(
	relPath string,
	info *lazy.Value[os.FileInfo],
	checksum *lazy.Value[string],
	header *lazy.Value[*rpmheader.Package],
) (*Package, bool, error) {
	s.cacheMu.Lock()
	cached := s.primaryCache[relPath]
	delete(s.primaryCache, relPath)
	s.cacheMu.Unlock()

	st, err := info.Get()
	if err != nil {
		return nil, false, err
	}
	if cached != nil && s.fresh(cached, st) {
		return cached, true, nil
	}

	sum, err := checksum.Get()
	if err != nil {
		return nil, false, err
	}
	hdr, err := header.Get()
	if err != nil {
		return nil, false, err
	}
	pkg, err := NewPackage(hdr, st, relPath, Checksum{
		Type:  s.cfg.hasher.Type(),
		PkgID: "YES",
		Value: sum,
	}, s.cfg.usefulFiles)
	if err != nil {
		return nil, false, err
	}
	return pkg, false, nil
}

// fresh reports whether a cached record still describes the file on disk.
// Content is not compared.
func (s *State) fresh(cached *Package, info os.FileInfo) bool {
	return cached.Size.Package == info.Size() &&
		cached.Time.File == info.ModTime().Unix() &&
		cached.Checksum.Type == s.cfg.hasher.Type()
}

// resolveFilelist takes the previous filelists record with the same
// checksum, which survives renames, and falls back to the header.
func (s *State) resolveFilelist(pkg *Package, header *lazy.Value[*rpmheader.Package]) (*FilelistPackage, error) {
	s.cacheMu.Lock()
	cached := s.filelistsCache[pkg.Checksum.Value]
	delete(s.filelistsCache, pkg.Checksum.Value)
	s.cacheMu.Unlock()
	if cached != nil {
		return cached, nil
	}

	hdr, err := header.Get()
	if err != nil {
		return nil, err
	}
	return NewFilelistPackage(hdr, pkg.Checksum.Value)
}

func (s *State) recordFailure(err error) {
	f := Failure{Error: err.Error()}
	var pe *PackageError
	if errors.As(err, &pe) {
		f = Failure{Path: pe.RelPath, Name: pe.Name, Error: pe.Err.Error()}
		s.log.Error("failed to index package", "package", pe.RelPath, "name", pe.Name, "error", pe.Err)
	} else {
		s.log.Error("failed to index package", "error", err)
	}

	s.statsMu.Lock()
	s.stats.Failed++
	s.failures = append(s.failures, f)
	s.statsMu.Unlock()
}

// Finish writes the new documents and manifest to the scratch directory
// and publishes it as repodata/.
func (s *State) Finish(ctx context.Context) (*Repomd, error) {
	if s.published {
		return nil, ErrFinished
	}
	s.phase = PhaseFinalizing

	repomd, err := s.finalize(ctx)
	if err != nil {
		s.phase = PhaseFailed
		return nil, err
	}
	if err := s.publish(); err != nil {
		s.phase = PhaseFailed
		return nil, err
	}
	s.phase = PhaseDone
	return repomd, nil
}

func (s *State) finalize(ctx context.Context) (*Repomd, error) {
	s.docMu.Lock()
	defer s.docMu.Unlock()

	sort.SliceStable(s.primary.Packages, func(i, j int) bool {
		return s.primary.Packages[i].Location.Href < s.primary.Packages[j].Location.Href
	})

	repomd := NewRepomd(s.now().Unix())
	primary, err := s.writeDocument(DataPrimary, "primary.xml", s.primary)
	if err != nil {
		return nil, err
	}
	repomd.Add(primary)

	if s.filelists != nil {
		sort.SliceStable(s.filelists.Packages, func(i, j int) bool {
			a, b := s.filelists.Packages[i], s.filelists.Packages[j]
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.PkgID < b.PkgID
		})
		filelists, err := s.writeDocument(DataFilelists, "filelists.xml", s.filelists)
		if err != nil {
			return nil, err
		}
		repomd.Add(filelists)
	}

	if s.cfg.generateDatabase {
		db, err := s.writeDatabase(ctx, primary.Checksum.Value)
		if err != nil {
			return nil, err
		}
		repomd.Add(db)
	}

	data, err := Marshal(repomd)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", ManifestFile, err)
	}
	if err := os.WriteFile(filepath.Join(s.scratch, ManifestFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", ManifestFile, err)
	}

	s.statsMu.Lock()
	s.stats.Revision = repomd.Revision
	s.stats.Packages = s.primary.Len()
	s.stats.Removed = len(s.primaryCache)
	s.statsMu.Unlock()
	return repomd, nil
}

// writeDocument compresses doc into the scratch directory and describes
// the result for the manifest.
func (s *State) writeDocument(typ, name string, doc document) (*Data, error) {
	data, err := Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}
	return s.writeCompressed(typ, name, data)
}

func (s *State) writeCompressed(typ, name string, data []byte) (*Data, error) {
	filename := name + compress.Extension
	target := filepath.Join(s.scratch, filename)

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", filename, err)
	}
	zw, err := s.cfg.compressor.NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		_ = f.Close()
		return nil, fmt.Errorf("writing %s: %w", filename, err)
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing %s: %w", filename, err)
	}

	sum, err := s.cfg.hasher.HashPath(target)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}

	return &Data{
		Type:         typ,
		Checksum:     Checksum{Type: s.cfg.hasher.Type(), Value: sum},
		OpenChecksum: Checksum{Type: s.cfg.hasher.Type(), Value: s.cfg.hasher.HashBytes(data)},
		Location:     Location{Href: MetadataDir + "/" + filename},
		Timestamp:    info.ModTime().Unix(),
		Size:         info.Size(),
		OpenSize:     int64(len(data)),
	}, nil
}

// publish replaces repodata/ with the scratch directory. A crash between
// the removal and the rename leaves no index at all.
func (s *State) publish() error {
	if err := os.Chmod(s.scratch, 0o755); err != nil {
		return fmt.Errorf("chmod scratch directory: %w", err)
	}
	target := s.metadataDir()
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("removing old %s: %w", MetadataDir, err)
	}
	if err := os.Rename(s.scratch, target); err != nil {
		return fmt.Errorf("publishing %s: %w", MetadataDir, err)
	}
	s.published = true
	if err := syncDir(s.root); err != nil {
		s.log.Warn("cannot sync repository root", "error", err)
	}
	s.log.Info("published index", "path", target)
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Statistics returns a snapshot of the run counters.
func (s *State) Statistics() Statistics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	stats := s.stats
	stats.Failures = append([]Failure(nil), s.failures...)
	return stats
}

// Close releases the manifest lock and removes an unpublished scratch
// directory. It is safe to call more than once.
func (s *State) Close() error {
	var errs []error
	if err := s.lock.release(); err != nil {
		errs = append(errs, fmt.Errorf("releasing lock: %w", err))
	}
	s.lock = nil
	if s.scratch != "" && !s.published {
		if err := os.RemoveAll(s.scratch); err != nil {
			errs = append(errs, fmt.Errorf("removing scratch directory: %w", err))
		}
	}
	s.scratch = ""
	return errors.Join(errs...)
}
