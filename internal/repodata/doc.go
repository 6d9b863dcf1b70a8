// Package repodata builds and incrementally updates the yum metadata of an
// RPM repository.
//
// A generation run locks the published repodata/repomd.xml, loads the
// previous primary and filelists documents into lookup caches, and then
// processes candidate package files in parallel. Files whose size and
// modification time match their cached record are reused verbatim; the
// rest are hashed and their headers parsed. The new documents are written
// to a scratch directory next to repodata/ and swapped into place when the
// run finishes.
//
// Repository is the entry point:
//
//	repo, err := repodata.New("/srv/repo", cfg, repodata.WithLogger(log))
//	stats, err := repo.Rebuild(ctx)
//
// Per-package failures never abort a run. They are logged and collected in
// Statistics.Failures, and the package is left out of the new index.
package repodata
