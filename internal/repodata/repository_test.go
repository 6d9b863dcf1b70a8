package repodata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/rpmrepo/internal/compress"
	"github.com/dshills/rpmrepo/internal/metrics"
	"github.com/dshills/rpmrepo/internal/notify"
	"github.com/dshills/rpmrepo/internal/rpmheader"
	"github.com/dshills/rpmrepo/internal/rpmheader/rpmtest"
	"github.com/dshills/rpmrepo/internal/storage"
)

func TestNewRejectsInvalidInput(t *testing.T) {
	root := t.TempDir()

	cfg := testConfig()
	cfg.UsefulFiles = "("
	_, err := New(root, cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Checksum = "md5"
	_, err = New(root, cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Concurrency = 0
	_, err = New(root, cfg)
	assert.Error(t, err)

	_, err = New(filepath.Join(root, "missing"), testConfig())
	assert.Error(t, err)

	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, testConfig())
	assert.Error(t, err)
}

func TestRebuild(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "c", "a", "b")
	rpmtest.Write(t, filepath.Join(root, "extra", "sub", "d-1.0-1.noarch.RPM"), rpmtest.Basic("d", "1.0", "1"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Packages", "README.txt"), []byte("not a package"), 0o644))

	r, counts := newTestRepository(t, root, testConfig())
	stats, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, OperationRebuild, stats.Operation)
	assert.Equal(t, int64(testRevision), stats.Revision)
	assert.Equal(t, 4, stats.Packages)
	assert.Equal(t, 4, stats.Rebuilt)
	assert.Zero(t, stats.Reused)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Removed)
	assert.Equal(t, int32(4), counts.hashes.Load())

	repomd, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, int64(testRevision), repomd.Revision)
	require.NotNil(t, repomd.Find(DataPrimary))
	require.NotNil(t, repomd.Find(DataFilelists))
	assert.Nil(t, repomd.Find(DataPrimaryDB))
	assert.Equal(t, "repodata/primary.xml.gz", repomd.Find(DataPrimary).Location.Href)

	primary := readPrimary(t, r)
	assert.Equal(t, 4, primary.Count)
	assert.Equal(t, []string{
		packageFile("a"),
		packageFile("b"),
		packageFile("c"),
		"extra/sub/d-1.0-1.noarch.RPM",
	}, hrefs(primary))

	a := recordByHref(t, primary, packageFile("a"))
	info, err := os.Stat(filepath.Join(root, packageFile("a")))
	require.NoError(t, err)
	assert.Equal(t, info.Size(), a.Size.Package)
	assert.Equal(t, info.ModTime().Unix(), a.Time.File)
	assert.Equal(t, "sha256", a.Checksum.Type)
	assert.Len(t, a.Checksum.Value, 64)

	filelists := readFilelists(t, r)
	require.Equal(t, 4, filelists.Count)
	names := []string{}
	for _, pkg := range filelists.Packages {
		names = append(names, pkg.Name)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, names)
	assert.Equal(t, a.Checksum.Value, filelists.Packages[0].PkgID)

	assert.Empty(t, scratchDirs(t, root))
	info, err = os.Stat(filepath.Join(root, MetadataDir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestRebuildDocumentNames(t *testing.T) {
	for _, strategy := range []string{compress.Single, compress.Parallel} {
		t.Run(strategy, func(t *testing.T) {
			root := t.TempDir()
			writePackages(t, root, "a")
			cfg := testConfig()
			cfg.Compression = strategy
			cfg.GenerateDatabase = true
			r, _ := newTestRepository(t, root, cfg)
			_, err := r.Rebuild(context.Background())
			require.NoError(t, err)

			repomd, err := r.Status()
			require.NoError(t, err)
			want := map[string]string{
				DataPrimary:   "repodata/primary.xml" + compress.Extension,
				DataFilelists: "repodata/filelists.xml" + compress.Extension,
				DataPrimaryDB: "repodata/primary.sqlite" + compress.Extension,
			}
			require.Len(t, repomd.Data, len(want))
			for _, d := range repomd.Data {
				assert.Equal(t, want[d.Type], d.Location.Href)
				assert.FileExists(t, filepath.Join(root, d.Location.Href))
			}
		})
	}
}

func TestRebuildEmptyRepository(t *testing.T) {
	r, _ := newTestRepository(t, t.TempDir(), testConfig())

	stats, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Packages)

	primary := readPrimary(t, r)
	assert.Zero(t, primary.Count)
	assert.Empty(t, primary.Packages)
}

func TestRebuildReusesUnchangedPackages(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b", "c")
	r, counts := newTestRepository(t, root, testConfig())

	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	before := readPrimary(t, r)
	beforeFiles := readFilelists(t, r)

	counts.reset()
	stats, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Reused)
	assert.Zero(t, stats.Rebuilt)
	assert.Zero(t, counts.hashes.Load(), "unchanged packages must not be hashed")
	assert.Zero(t, counts.headers.Load(), "unchanged packages must not be parsed")
	assert.Equal(t, before, readPrimary(t, r))
	assert.Equal(t, beforeFiles, readFilelists(t, r))
}

func TestRebuildRehashesTouchedPackage(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b", "c")
	r, counts := newTestRepository(t, root, testConfig())

	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	before := recordByHref(t, readPrimary(t, r), packageFile("b"))

	touch(t, filepath.Join(root, packageFile("b")), time.Hour)
	counts.reset()
	stats, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Reused)
	assert.Equal(t, 1, stats.Rebuilt)
	assert.Equal(t, int32(1), counts.hashes.Load())

	after := recordByHref(t, readPrimary(t, r), packageFile("b"))
	assert.Equal(t, before.Checksum, after.Checksum)
	assert.Equal(t, before.Time.File+3600, after.Time.File)
}

func TestRebuildDropsDeletedPackages(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b", "c")
	r, _ := newTestRepository(t, root, testConfig())

	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, packageFile("c"))))
	stats, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Packages)
	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, []string{packageFile("a"), packageFile("b")}, hrefs(readPrimary(t, r)))
	assert.Equal(t, 2, readFilelists(t, r).Count)
}

func TestRebuildAfterChecksumChange(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b")
	r, _ := newTestRepository(t, root, testConfig())
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Checksum = "sha512"
	r, counts := newTestRepository(t, root, cfg)
	stats, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Rebuilt)
	assert.Equal(t, int32(2), counts.hashes.Load())
	for _, pkg := range readPrimary(t, r).Packages {
		assert.Equal(t, "sha512", pkg.Checksum.Type)
		assert.Len(t, pkg.Checksum.Value, 128)
	}
	repomd, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, "sha512", repomd.Find(DataPrimary).Checksum.Type)
}

func TestRebuildReusesFilelistsOfRenamedPackage(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a")
	r, counts := newTestRepository(t, root, testConfig())
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	before := readFilelists(t, r)

	require.NoError(t, os.Rename(
		filepath.Join(root, packageFile("a")),
		filepath.Join(root, "moved.rpm"),
	))
	counts.reset()
	stats, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Rebuilt)
	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, []string{"moved.rpm"}, hrefs(readPrimary(t, r)))
	assert.Equal(t, before, readFilelists(t, r))
}

func TestRebuildWithoutFilelists(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a")
	cfg := testConfig()
	cfg.GenerateFilelists = false
	r, _ := newTestRepository(t, root, cfg)

	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	repomd, err := r.Status()
	require.NoError(t, err)
	assert.Nil(t, repomd.Find(DataFilelists))
	assert.NoFileExists(t, filepath.Join(root, MetadataDir, "filelists.xml.gz"))
}

func TestRebuildOmitsFailedPackages(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "good")
	require.NoError(t, os.WriteFile(filepath.Join(root, "Packages", "garbage.rpm"), []byte("this is not an rpm"), 0o644))
	nameless := rpmtest.Basic("nameless", "1.0", "1")
	nameless.Omit = []rpmheader.Tag{rpmheader.TagName}
	rpmtest.Write(t, filepath.Join(root, "Packages", "nameless.rpm"), nameless)
	fileless := rpmtest.Basic("fileless", "1.0", "1")
	fileless.Omit = []rpmheader.Tag{rpmheader.TagDirIndexes}
	rpmtest.Write(t, filepath.Join(root, "Packages", "fileless.rpm"), fileless)

	r, _ := newTestRepository(t, root, testConfig())
	stats, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Packages)
	assert.Equal(t, 3, stats.Failed)
	require.Len(t, stats.Failures, 3)
	var paths []string
	for _, f := range stats.Failures {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{"Packages/garbage.rpm", "Packages/nameless.rpm", "Packages/fileless.rpm"}, paths)
	for _, f := range stats.Failures {
		assert.NotEmpty(t, f.Error)
	}

	assert.Equal(t, []string{packageFile("good")}, hrefs(readPrimary(t, r)))
	assert.Equal(t, 1, readFilelists(t, r).Count)
}

func TestRebuildRecoversFromUnreadableIndex(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b")
	r, counts := newTestRepository(t, root, testConfig())
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, MetadataDir, "primary.xml.gz"), []byte("garbage"), 0o644))
	counts.reset()
	stats, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Rebuilt)
	assert.Equal(t, int32(2), counts.hashes.Load())
	assert.Equal(t, 2, readPrimary(t, r).Count)
}

func TestRebuildWhileLockedStartsFromScratch(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b", "c")
	r, counts := newTestRepository(t, root, testConfig())
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	held, err := tryLock(filepath.Join(root, MetadataDir, ManifestFile))
	require.NoError(t, err)
	defer func() { _ = held.release() }()

	counts.reset()
	stats, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Rebuilt)
	assert.Zero(t, stats.Reused)
	assert.Equal(t, int32(3), counts.hashes.Load())
	assert.Equal(t, 3, readPrimary(t, r).Count)
}

func TestRebuildCanceled(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b")
	r, _ := newTestRepository(t, root, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Rebuild(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = r.Status()
	assert.ErrorIs(t, err, ErrNotPublished)
	assert.Empty(t, scratchDirs(t, root))
}

func TestAddPreservesUntouchedPackages(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b", "c")
	r, counts := newTestRepository(t, root, testConfig())
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	before := readPrimary(t, r)

	spec := rpmtest.Basic("b", "1.0", "2")
	spec.Summary = "b rebuilt with a longer summary"
	pathB := rpmtest.Write(t, filepath.Join(root, packageFile("b")), spec)
	touch(t, pathB, time.Hour)

	counts.reset()
	stats, err := r.Add(context.Background(), []string{packageFile("b")})
	require.NoError(t, err)

	assert.Equal(t, OperationAdd, stats.Operation)
	assert.Equal(t, 2, stats.Restored)
	assert.Equal(t, 1, stats.Rebuilt)
	assert.Zero(t, stats.Reused)
	assert.Zero(t, stats.Removed)
	assert.Equal(t, int32(1), counts.hashes.Load())

	after := readPrimary(t, r)
	require.Equal(t, 3, after.Count)
	for _, name := range []string{"a", "c"} {
		href := packageFile(name)
		assert.Equal(t, recordByHref(t, before, href), recordByHref(t, after, href))
	}
	b := recordByHref(t, after, packageFile("b"))
	assert.Equal(t, "2", b.Version.Rel)
	assert.Equal(t, "b rebuilt with a longer summary", b.Summary)

	filelists := readFilelists(t, r)
	require.Equal(t, 3, filelists.Count)
	assert.Equal(t, b.Checksum.Value, filelists.Packages[1].PkgID)
	assert.Equal(t, "2", filelists.Packages[1].Version.Rel)
}

func TestAddUnchangedPackageReusesRecord(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b")
	r, counts := newTestRepository(t, root, testConfig())
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	before := readPrimary(t, r)

	counts.reset()
	stats, err := r.Add(context.Background(), []string{filepath.Join(root, packageFile("a"))})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Restored)
	assert.Equal(t, 1, stats.Reused)
	assert.Zero(t, counts.hashes.Load())
	assert.Equal(t, before, readPrimary(t, r))
}

func TestAddRemovesMissingPackage(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b", "c")
	r, _ := newTestRepository(t, root, testConfig())
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	pathC := filepath.Join(root, packageFile("c"))
	require.NoError(t, os.Remove(pathC))
	stats, err := r.Add(context.Background(), []string{pathC})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Packages)
	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, []string{packageFile("a"), packageFile("b")}, hrefs(readPrimary(t, r)))
	assert.Equal(t, 2, readFilelists(t, r).Count)
}

func TestAddIgnoresInvalidPaths(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b", "c")
	require.NoError(t, os.WriteFile(filepath.Join(root, "Packages", "notes.txt"), nil, 0o644))
	r, counts := newTestRepository(t, root, testConfig())
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	before := readPrimary(t, r)

	counts.reset()
	stats, err := r.Add(context.Background(), []string{
		"/outside/of/root.rpm",
		"../escape.rpm",
		"Packages/notes.txt",
		".",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Restored)
	assert.Zero(t, stats.Rebuilt)
	assert.Zero(t, stats.Removed)
	assert.Zero(t, counts.hashes.Load())
	assert.Equal(t, before, readPrimary(t, r))
}

func TestAddWithoutPreviousIndex(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b")
	r, _ := newTestRepository(t, root, testConfig())

	stats, err := r.Add(context.Background(), []string{packageFile("a")})
	require.NoError(t, err)

	assert.Zero(t, stats.Restored)
	assert.Equal(t, 1, stats.Rebuilt)
	assert.Equal(t, []string{packageFile("a")}, hrefs(readPrimary(t, r)))
}

func TestAddWhileLockedKeepsUntouchedPackages(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b", "c", "d")
	r, _ := newTestRepository(t, root, testConfig())
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	held, err := tryLock(filepath.Join(root, MetadataDir, ManifestFile))
	require.NoError(t, err)
	defer func() { _ = held.release() }()

	require.NoError(t, os.Remove(filepath.Join(root, packageFile("d"))))
	stats, err := r.Add(context.Background(), []string{packageFile("b"), packageFile("d")})
	require.NoError(t, err)

	assert.Equal(t, OperationAdd, stats.Operation)
	assert.Equal(t, 3, stats.Rebuilt)
	assert.Equal(t, 3, stats.Packages)
	assert.Equal(t, []string{packageFile("a"), packageFile("b"), packageFile("c")}, hrefs(readPrimary(t, r)))
}

func TestAddWithUnreadableIndexKeepsUntouchedPackages(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b", "c")
	r, counts := newTestRepository(t, root, testConfig())
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, MetadataDir, "primary.xml.gz"), []byte("garbage"), 0o644))
	counts.reset()
	stats, err := r.Add(context.Background(), []string{packageFile("b")})
	require.NoError(t, err)

	assert.Zero(t, stats.Restored)
	assert.Equal(t, 3, stats.Rebuilt)
	assert.Equal(t, int32(3), counts.hashes.Load())
	assert.Equal(t, []string{packageFile("a"), packageFile("b"), packageFile("c")}, hrefs(readPrimary(t, r)))
	assert.Len(t, readFilelists(t, r).Packages, 3)
}

func TestRebuildGeneratesDatabase(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b")
	cfg := testConfig()
	cfg.GenerateDatabase = true
	r, _ := newTestRepository(t, root, cfg)

	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	repomd, err := r.Status()
	require.NoError(t, err)
	entry := repomd.Find(DataPrimaryDB)
	require.NotNil(t, entry)
	assert.Equal(t, storage.DatabaseVersion, entry.DatabaseVersion)
	assert.Equal(t, "repodata/primary.sqlite.gz", entry.Location.Href)
	assert.NoFileExists(t, filepath.Join(root, MetadataDir, "primary.sqlite"))

	compressed, err := os.ReadFile(filepath.Join(root, MetadataDir, "primary.sqlite.gz"))
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, entry.OpenSize, int64(len(raw)))

	dbPath := filepath.Join(t.TempDir(), "primary.sqlite")
	require.NoError(t, os.WriteFile(dbPath, raw, 0o644))
	db, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer db.Close()

	count, err := db.CountPackages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	a := recordByHref(t, readPrimary(t, r), packageFile("a"))
	row, err := db.GetPackage(context.Background(), a.Checksum.Value)
	require.NoError(t, err)
	assert.Equal(t, "a", row.Name)
	assert.Equal(t, packageFile("a"), row.LocationHref)
	assert.Equal(t, "0", row.Epoch)

	report, err := r.Validate(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Checks, 3)
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b", "c")
	r, _ := newTestRepository(t, root, testConfig())
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	report, err := r.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(testRevision), report.Revision)
	assert.Equal(t, 3, report.Packages)
	assert.Equal(t, 3, report.Filelists)
	require.Len(t, report.Checks, 2)
	assert.Zero(t, report.Problems())
	for _, c := range report.Checks {
		assert.True(t, c.OK, c.Type)
	}
}

func TestValidateDetectsModifiedDocument(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a")
	r, _ := newTestRepository(t, root, testConfig())
	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	// Recompress at another level: still readable, but not the bytes the
	// manifest describes.
	path := filepath.Join(root, MetadataDir, "filelists.xml.gz")
	compressed, err := os.ReadFile(path)
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	require.NoError(t, err)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	report, err := r.Validate(context.Background())
	require.ErrorIs(t, err, ErrCorruptIndex)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Problems())
	for _, c := range report.Checks {
		if c.Type == DataFilelists {
			assert.False(t, c.OK)
			assert.NotEmpty(t, c.Error)
		} else {
			assert.True(t, c.OK)
		}
	}
}

func TestValidateUnpublished(t *testing.T) {
	r, _ := newTestRepository(t, t.TempDir(), testConfig())

	_, err := r.Validate(context.Background())
	assert.ErrorIs(t, err, ErrNotPublished)

	_, err = r.Status()
	assert.ErrorIs(t, err, ErrNotPublished)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func TestRunRecordsMetricsAndEvent(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a", "b")
	textfile := filepath.Join(t.TempDir(), "rpmrepo.prom")
	collector := metrics.New(textfile)
	publisher := &recordingPublisher{}
	r, _ := newTestRepository(t, root, testConfig(), WithMetrics(collector), WithPublisher(publisher))

	stats, err := r.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.PackagesTotal.WithLabelValues(metrics.ResultRebuilt)))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.IndexPackages))
	assert.FileExists(t, textfile)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, stats.RunID, event.RunID)
	assert.Equal(t, OperationRebuild, event.Operation)
	assert.Equal(t, r.Root(), event.Repository)
	assert.Equal(t, int64(testRevision), event.Revision)
	assert.Equal(t, 2, event.Packages)
}

func TestRunSurvivesPublisherFailure(t *testing.T) {
	root := t.TempDir()
	writePackages(t, root, "a")
	publisher := &recordingPublisher{err: errors.New("broker unavailable")}
	r, _ := newTestRepository(t, root, testConfig(), WithPublisher(publisher))

	_, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Len(t, publisher.events, 1)
	assert.Equal(t, 1, readPrimary(t, r).Count)
}
