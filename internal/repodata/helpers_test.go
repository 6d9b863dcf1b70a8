package repodata

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/rpmrepo/internal/compress"
	"github.com/dshills/rpmrepo/internal/digest"
	"github.com/dshills/rpmrepo/internal/rpmheader"
	"github.com/dshills/rpmrepo/internal/rpmheader/rpmtest"
)

const testRevision = 1700000000

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Concurrency = 4
	cfg.Compression = compress.Single
	return cfg
}

// calls counts the expensive per-package operations of a repository.
type calls struct {
	hashes  atomic.Int32
	headers atomic.Int32
}

func (c *calls) reset() {
	c.hashes.Store(0)
	c.headers.Store(0)
}

func newTestRepository(t *testing.T, root string, cfg Config, opts ...Option) (*Repository, *calls) {
	t.Helper()
	counts := &calls{}
	hasher := digest.MustNew(cfg.Checksum)
	base := []Option{
		WithLogger(discardLogger),
		WithClock(func() time.Time { return time.Unix(testRevision, 0) }),
		WithHashFunc(func(f *os.File) (string, error) {
			counts.hashes.Add(1)
			return hasher.HashFile(f)
		}),
		WithHeaderReader(func(f *os.File) (*rpmheader.Package, error) {
			counts.headers.Add(1)
			return rpmheader.Open(f)
		}),
	}
	r, err := New(root, cfg, append(base, opts...)...)
	require.NoError(t, err)
	return r, counts
}

// packageFile returns the href of a basic package named name.
func packageFile(name string) string {
	return "Packages/" + name + "-1.0-1.noarch.rpm"
}

func writePackages(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		rpmtest.Write(t, filepath.Join(root, packageFile(name)), rpmtest.Basic(name, "1.0", "1"))
	}
}

func readPrimary(t *testing.T, r *Repository) *Primary {
	t.Helper()
	repomd, err := r.Status()
	require.NoError(t, err)
	entry := repomd.Find(DataPrimary)
	require.NotNil(t, entry)
	doc := &Primary{}
	require.NoError(t, ReadDocument(filepath.Join(r.Root(), entry.Location.Href), doc))
	return doc
}

func readFilelists(t *testing.T, r *Repository) *Filelists {
	t.Helper()
	repomd, err := r.Status()
	require.NoError(t, err)
	entry := repomd.Find(DataFilelists)
	require.NotNil(t, entry)
	doc := &Filelists{}
	require.NoError(t, ReadDocument(filepath.Join(r.Root(), entry.Location.Href), doc))
	return doc
}

func recordByHref(t *testing.T, doc *Primary, href string) *Package {
	t.Helper()
	for _, pkg := range doc.Packages {
		if pkg.Location.Href == href {
			return pkg
		}
	}
	require.Failf(t, "record not found", "no primary record for %s", href)
	return nil
}

func hrefs(doc *Primary) []string {
	out := make([]string, 0, doc.Len())
	for _, pkg := range doc.Packages {
		out = append(out, pkg.Location.Href)
	}
	return out
}

// snapshot returns the contents of every file below dir.
func snapshot(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		files[rel] = data
		return nil
	})
	require.NoError(t, err)
	return files
}

func scratchDirs(t *testing.T, root string) []string {
	t.Helper()
	dirs, err := filepath.Glob(filepath.Join(root, scratchPrefix+"*"))
	require.NoError(t, err)
	return dirs
}

// touch moves the modification time of path forward without changing it.
func touch(t *testing.T, path string, offset time.Duration) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	mtime := info.ModTime().Add(offset)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}
