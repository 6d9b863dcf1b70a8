package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/dshills/rpmrepo/internal/digest"
	"github.com/dshills/rpmrepo/internal/repodata"
	"github.com/dshills/rpmrepo/internal/rpmheader"
)

// Output formats of dump-rpm.
const (
	formatYAML = "yaml"
	formatJSON = "json"
	formatXML  = "xml"
)

func runDumpRPM(_ context.Context, a *app, args []string) error {
	fs := a.newFlagSet("dump-rpm")
	format := fs.StringP("format", "f", formatYAML, "output format: yaml, json or xml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("dump-rpm takes at least one package file")
	}
	switch *format {
	case formatYAML, formatJSON, formatXML:
	default:
		return fmt.Errorf("unknown format %q", *format)
	}

	hasher, err := digest.New(a.cfg.Repodata.Checksum)
	if err != nil {
		return err
	}
	useful, err := regexp.Compile(a.cfg.Repodata.UsefulFiles)
	if err != nil {
		return err
	}

	primary := repodata.NewPrimary()
	for _, path := range fs.Args() {
		pkg, err := readPackage(path, hasher, useful)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		primary.Add(pkg)
	}

	switch *format {
	case formatXML:
		data, err := repodata.Marshal(primary)
		if err != nil {
			return err
		}
		_, err = a.stdout.Write(data)
		return err
	case formatJSON:
		return writeJSON(a.stdout, primary.Packages)
	default:
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(primary.Packages); err != nil {
			return err
		}
		return enc.Close()
	}
}

// readPackage builds the primary record of a single file. The location
// is the file's base name.
func readPackage(path string, hasher *digest.Hasher, useful *regexp.Regexp) (*repodata.Package, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	hdr, err := rpmheader.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sum, err := hasher.HashPath(path)
	if err != nil {
		return nil, err
	}
	return repodata.NewPackage(hdr, info, filepath.Base(path), repodata.Checksum{
		Type:  hasher.Type(),
		PkgID: "YES",
		Value: sum,
	}, useful)
}
