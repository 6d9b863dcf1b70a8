package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/dshills/rpmrepo/internal/logger"
	mcpserver "github.com/dshills/rpmrepo/internal/mcp"
	"github.com/dshills/rpmrepo/internal/metrics"
	"github.com/dshills/rpmrepo/internal/notify"
	"github.com/dshills/rpmrepo/internal/repodata"
	"github.com/dshills/rpmrepo/internal/storage"
)

// repoFlags are the generation settings a command line may override.
type repoFlags struct {
	concurrency int
	checksum    string
	compression string
	database    bool
	filelists   bool
	json        bool
}

func (f *repoFlags) register(fs *pflag.FlagSet) {
	fs.IntVarP(&f.concurrency, "concurrency", "j", 0, "number of packages processed in parallel")
	fs.StringVar(&f.checksum, "checksum", "", "checksum type: sha, sha256 or sha512")
	fs.StringVar(&f.compression, "compression", "", "gzip strategy: parallel or single")
	fs.BoolVar(&f.database, "database", false, "also write primary.sqlite.gz")
	fs.BoolVar(&f.filelists, "filelists", true, "write filelists.xml.gz")
	fs.BoolVar(&f.json, "json", false, "print the run statistics as JSON")
}

func (f *repoFlags) apply(fs *pflag.FlagSet, cfg *repodata.Config) {
	if fs.Changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if fs.Changed("checksum") {
		cfg.Checksum = f.checksum
	}
	if fs.Changed("compression") {
		cfg.Compression = f.compression
	}
	if fs.Changed("database") {
		cfg.GenerateDatabase = f.database
	}
	if fs.Changed("filelists") {
		cfg.GenerateFilelists = f.filelists
	}
}

// openRepository wires metrics and notifications into a repository for
// root. The returned cleanup closes the publisher.
func (a *app) openRepository(root string, cfg repodata.Config) (*repodata.Repository, func(), error) {
	log := logger.WithComponent("repodata")
	publisher := notify.New(a.cfg.Notify.Brokers, a.cfg.Notify.Topic)
	cleanup := func() {
		if err := publisher.Close(); err != nil {
			log.Warn("failed to close event publisher", "error", err)
		}
	}

	repo, err := repodata.New(root, cfg,
		repodata.WithLogger(log),
		repodata.WithMetrics(metrics.New(a.cfg.Metrics.Textfile)),
		repodata.WithPublisher(publisher),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return repo, cleanup, nil
}

func runRebuild(ctx context.Context, a *app, args []string) error {
	var flags repoFlags
	fs := a.newFlagSet("rebuild")
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("rebuild takes exactly one repository root")
	}

	cfg := a.cfg.Repodata
	flags.apply(fs, &cfg)
	repo, cleanup, err := a.openRepository(fs.Arg(0), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := repo.Rebuild(ctx)
	if err != nil {
		return err
	}
	return a.printStatistics(stats, flags.json)
}

func runAdd(ctx context.Context, a *app, args []string) error {
	var flags repoFlags
	fs := a.newFlagSet("add")
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return errors.New("add takes a repository root and at least one package")
	}

	cfg := a.cfg.Repodata
	flags.apply(fs, &cfg)
	repo, cleanup, err := a.openRepository(fs.Arg(0), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := repo.Add(ctx, fs.Args()[1:])
	if err != nil {
		return err
	}
	return a.printStatistics(stats, flags.json)
}

func (a *app) printStatistics(stats *repodata.Statistics, asJSON bool) error {
	if asJSON {
		return writeJSON(a.stdout, stats)
	}
	fmt.Fprintf(a.stdout, "%s: published revision %d with %d packages in %s\n",
		stats.Operation, stats.Revision, stats.Packages, stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(a.stdout, "  reused %d, rebuilt %d, restored %d, removed %d, failed %d\n",
		stats.Reused, stats.Rebuilt, stats.Restored, stats.Removed, stats.Failed)
	for _, f := range stats.Failures {
		fmt.Fprintf(a.stdout, "  failed: %s: %s\n", f.Path, f.Error)
	}
	return nil
}

func runValidate(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("validate")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("validate takes exactly one repository root")
	}

	repo, cleanup, err := a.openRepository(fs.Arg(0), a.cfg.Repodata)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := repo.Validate(ctx)
	if report == nil {
		return err
	}
	if *asJSON {
		if jerr := writeJSON(a.stdout, report); jerr != nil {
			return jerr
		}
		return err
	}

	fmt.Fprintf(a.stdout, "revision %d: %d packages, %d filelists\n", report.Revision, report.Packages, report.Filelists)
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, c := range report.Checks {
		result := "ok"
		if !c.OK {
			result = "FAILED: " + c.Error
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", c.Type, c.Location, result)
	}
	if ferr := tw.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func runStatus(_ context.Context, a *app, args []string) error {
	fs := a.newFlagSet("status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("status takes exactly one repository root")
	}

	repo, cleanup, err := a.openRepository(fs.Arg(0), a.cfg.Repodata)
	if err != nil {
		return err
	}
	defer cleanup()

	repomd, err := repo.Status()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "%s: revision %d\n", repo.Root(), repomd.Revision)
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, d := range repomd.Data {
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%s:%s\n", d.Type, d.Location.Href, d.Size, d.Checksum.Type, d.Checksum.Value)
	}
	return tw.Flush()
}

func runDumpConfig(_ context.Context, a *app, args []string) error {
	fs := a.newFlagSet("dump-config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	data, err := a.cfg.YAML()
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err = a.stdout.Write(data)
	return err
}

func runMCP(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("mcp")
	if err := fs.Parse(args); err != nil {
		return err
	}

	publisher := notify.New(a.cfg.Notify.Brokers, a.cfg.Notify.Topic)
	defer publisher.Close()

	server, err := mcpserver.NewServer(a.cfg.Repodata, logger.WithComponent("mcp"),
		repodata.WithMetrics(metrics.New(a.cfg.Metrics.Textfile)),
		repodata.WithPublisher(publisher),
	)
	if err != nil {
		return err
	}
	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("MCP server stopped")
	return nil
}

func runVersion(_ context.Context, a *app, _ []string) error {
	fmt.Fprintf(a.stdout, "rpmrepo %s\n", version)
	fmt.Fprintf(a.stdout, "Build Time: %s\n", buildTime)
	fmt.Fprintf(a.stdout, "Build Mode: %s\n", storage.BuildMode)
	fmt.Fprintf(a.stdout, "SQLite Driver: %s\n", storage.DriverName)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
