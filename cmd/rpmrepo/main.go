// rpmrepo generates yum repository metadata (repodata/) for a directory
// tree of RPM packages. Records of packages whose size and modification
// time are unchanged are carried over from the previous index, so
// regenerating a large repository only reads the packages that changed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dshills/rpmrepo/internal/config"
	"github.com/dshills/rpmrepo/internal/logger"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every command needs.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

type command struct {
	usage   string
	summary string
	// needsConfig commands get a loaded, validated configuration and the
	// process logger set up before they run.
	needsConfig bool
	run         func(ctx context.Context, a *app, args []string) error
}

// commands is filled in init because the commands look themselves up.
var commands map[string]command

func init() {
	commands = map[string]command{
		"rebuild": {
			usage:       "rebuild [flags] ROOT",
			summary:     "Scan ROOT for packages and regenerate repodata/",
			needsConfig: true,
			run:         runRebuild,
		},
		"add": {
			usage:       "add [flags] ROOT PACKAGE...",
			summary:     "Update repodata/ for the given packages only; missing files are removed",
			needsConfig: true,
			run:         runAdd,
		},
		"validate": {
			usage:       "validate [flags] ROOT",
			summary:     "Verify the published documents against repomd.xml",
			needsConfig: true,
			run:         runValidate,
		},
		"status": {
			usage:       "status [flags] ROOT",
			summary:     "Show the published revision and documents",
			needsConfig: true,
			run:         runStatus,
		},
		"dump-rpm": {
			usage:       "dump-rpm [--format yaml|json|xml] FILE...",
			summary:     "Print the metadata record of RPM files",
			needsConfig: true,
			run:         runDumpRPM,
		},
		"dump-config": {
			usage:       "dump-config",
			summary:     "Print the effective configuration. Helps to find typos",
			needsConfig: true,
			run:         runDumpConfig,
		},
		"mcp": {
			usage:       "mcp",
			summary:     "Serve the repository operations as MCP tools on stdio",
			needsConfig: true,
			run:         runMCP,
		},
		"version": {
			usage:   "version",
			summary: "Print version information",
			run:     runVersion,
		},
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stdout: stdout, stderr: stderr}

	flagSet := pflag.NewFlagSet("rpmrepo", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&a.configPath, "config", "c", "", "configuration file (default $RPMREPO_CONFIG or "+config.DefaultPath+")")
	flagSet.StringVar(&a.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")
	flagSet.StringVar(&a.logFormat, "log-format", "", "override log_format (text, json)")
	flagSet.Usage = func() { a.printHelp(flagSet) }

	// Handle --version before flag parsing to match the version command.
	if len(args) > 0 && args[0] == "--version" {
		return runVersion(ctx, a, nil)
	}
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		a.printHelp(flagSet)
		return pflag.ErrHelp
	}
	name := rest[0]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (run rpmrepo --help)", name)
	}

	if cmd.needsConfig {
		if err := a.loadConfig(); err != nil {
			return err
		}
	}
	return cmd.run(ctx, a, rest[1:])
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) printHelp(flagSet *pflag.FlagSet) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("rpmrepo generates yum repository metadata for a tree of RPM packages.\n\n")
	b.WriteString("Usage:\n  rpmrepo [global flags] COMMAND [flags] [args]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-12s %s\n", name, commands[name].summary)
	}
	b.WriteString("\nGlobal flags:\n")
	fmt.Fprint(a.stderr, b.String())
	fmt.Fprint(a.stderr, flagSet.FlagUsages())
}

// newFlagSet returns the flag set of one command. -h prints its usage.
func (a *app) newFlagSet(name string) *pflag.FlagSet {
	cmd := commands[name]
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage:\n  rpmrepo %s\n\n%s\n", cmd.usage, cmd.summary)
		if fs.HasFlags() {
			fmt.Fprintf(a.stderr, "\nFlags:\n%s", fs.FlagUsages())
		}
	}
	return fs
}
