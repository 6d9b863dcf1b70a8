package repodata

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const packageExt = ".rpm"

func isPackage(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), packageExt)
}

// discover walks the root for package files without leaving its filesystem.
func (r *Repository) discover(log *slog.Logger) ([]Candidate, error) {
	var rootStat unix.Stat_t
	if err := unix.Stat(r.root, &rootStat); err != nil {
		return nil, err
	}

	var candidates []Candidate
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == r.root {
				return nil
			}
			// Skip our own output and scratch directories
			if strings.HasPrefix(d.Name(), scratchPrefix) || path == filepath.Join(r.root, MetadataDir) {
				return filepath.SkipDir
			}
			var st unix.Stat_t
			if err := unix.Lstat(path, &st); err != nil {
				return err
			}
			if st.Dev != rootStat.Dev {
				log.Debug("not crossing filesystem boundary", "path", path)
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if !isPackage(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return err
		}
		candidates = append(candidates, Candidate{Path: path, RelPath: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("found packages", "count", len(candidates))
	return candidates, nil
}

// resolve turns caller-supplied paths into candidates and the set of hrefs
// they claim. Paths outside the root or without the package extension are
// dropped. Missing files are claimed but not processed, which removes them
// from the index.
func (r *Repository) resolve(log *slog.Logger, paths []string) ([]Candidate, map[string]struct{}) {
	keys := make(map[string]struct{}, len(paths))
	var candidates []Candidate

	for _, p := range paths {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(r.root, abs)
		}
		abs = filepath.Clean(abs)

		rel, err := filepath.Rel(r.root, abs)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			log.Warn("ignoring path outside repository", "path", p)
			continue
		}
		if !isPackage(abs) {
			log.Warn("ignoring path without package extension", "path", p)
			continue
		}

		href := filepath.ToSlash(rel)
		if _, dup := keys[href]; dup {
			continue
		}
		keys[href] = struct{}{}

		if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
			log.Warn("package missing, removing it from the index", "path", p)
			continue
		}
		candidates = append(candidates, Candidate{Path: abs, RelPath: href})
	}
	return candidates, keys
}
