package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	torrentcombine "github.com/mattkeenan/torrentcombine/pkg"
)

// cliOptions holds the raw flag values. Only flags the user actually set
// override the config file.
type cliOptions struct {
	srcDirs      []string
	exclude      []string
	minSize      string
	extensions   string
	replace      bool
	dryRun       bool
	noMmap       bool
	copyEmptyDst bool
	threads      int
	dedup        string
	noCache      bool
	clearCache   bool
	verbose      int
	debug        string
	logFile      string
	noColor      bool
	overrides    []string
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "torrentcombine: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts cliOptions

	cmd := &cobra.Command{
		Use:   "torrentcombine [flags] <root-dir>...",
		Short: "Merge partial downloads of the same payload into complete files",
		Long: `torrentcombine scans the given directories for files that look like copies
of the same payload, checks that their non-zero regions agree, and writes the
combined content for every copy that is still missing data.

Files under --src directories are read but never modified.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, args, &opts)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&opts.srcDirs, "src", nil, "Read-only source directory (repeatable)")
	flags.StringArrayVar(&opts.exclude, "exclude", nil, "Directory to skip during discovery (repeatable)")
	flags.StringVar(&opts.minSize, "min-size", "1MB", "Only consider files larger than this (e.g. 10MB, 1GB, 1048576)")
	flags.StringVar(&opts.extensions, "ext", "", "Comma-separated extensions to consider (e.g. mkv,mp4)")
	flags.BoolVar(&opts.replace, "replace", false, "Overwrite incomplete files instead of writing <name>.merged")
	flags.BoolVarP(&opts.dryRun, "dry-run", "n", false, "Report what would be done without touching any file")
	flags.BoolVar(&opts.noMmap, "no-mmap", false, "Always use buffered reads")
	flags.BoolVar(&opts.copyEmptyDst, "copy-empty-dst", false, "Copy a matching source over destinations that contain only zero bytes")
	flags.IntVarP(&opts.threads, "num-threads", "j", 0, "Number of groups processed in parallel (0 = one per CPU)")
	flags.StringVar(&opts.dedup, "dedup", "filename-and-size", "Grouping mode: filename-and-size, size-only, extension-and-size")
	flags.BoolVar(&opts.noCache, "no-cache", false, "Do not read or write the group cache")
	flags.BoolVar(&opts.clearCache, "clear-cache", false, "Discard the group cache before running")
	flags.CountVarP(&opts.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	flags.StringVar(&opts.debug, "debug", "", "Comma-separated debug flags (merge, cache, scan, filter)")
	flags.StringVar(&opts.logFile, "log-file", "", "Also write JSON logs to this file, rotated")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored console output")
	flags.StringArrayVar(&opts.overrides, "config-override", nil, "Override a config value as key:value (repeatable)")

	cmd.AddCommand(newVersionCommand())
	return cmd
}

func runMerge(cmd *cobra.Command, args []string, opts *cliOptions) error {
	torrentcombine.SetupLogging(torrentcombine.LogOptions{
		Console: cmd.ErrOrStderr(),
		NoColor: opts.noColor,
		File:    opts.logFile,
	})

	for _, root := range args {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			return fmt.Errorf("%w: %s", torrentcombine.ErrRootMissing, root)
		}
	}

	config, err := torrentcombine.LoadConfig(torrentcombine.StateDir(args[0]), !opts.dryRun)
	if err != nil {
		return err
	}
	if err := config.ApplyOverrides(opts.overrides); err != nil {
		return err
	}

	verboseConfig := config.GetVerboseConfig()
	level, debug := verboseConfig.Level, verboseConfig.Debug
	if cmd.Flags().Changed("verbose") {
		level = opts.verbose
	}
	if cmd.Flags().Changed("debug") {
		debug = opts.debug
	}
	torrentcombine.SetVerboseLevel(level)
	torrentcombine.InitDebugFlags(debug)

	runCfg, err := config.RunConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration in %s: %w", config.Path(), err)
	}
	if err := applyFlags(cmd.Flags(), opts, &runCfg); err != nil {
		return err
	}
	runCfg.Roots = args
	runCfg.SrcDirs = opts.srcDirs
	runCfg.Exclude = opts.exclude

	ctx, stop := setupSignalHandler(cmd.Context())
	defer stop()

	report, err := torrentcombine.Run(ctx, runCfg)
	if err != nil {
		return err
	}

	printSummary(cmd, report, runCfg.DryRun)
	return nil
}

// applyFlags copies every explicitly set flag over the config file values.
func applyFlags(flags *pflag.FlagSet, opts *cliOptions, cfg *torrentcombine.RunConfig) error {
	if flags.Changed("min-size") {
		size, err := torrentcombine.ParseHumanSize(opts.minSize)
		if err != nil {
			return fmt.Errorf("invalid --min-size: %w", err)
		}
		cfg.MinSize = size
	}
	if flags.Changed("ext") {
		cfg.Extensions = torrentcombine.SplitList(opts.extensions)
	}
	if flags.Changed("dedup") {
		mode, err := torrentcombine.ParseDedupMode(opts.dedup)
		if err != nil {
			return fmt.Errorf("invalid --dedup: %w", err)
		}
		cfg.Dedup = mode
	}
	if flags.Changed("num-threads") {
		if err := torrentcombine.ValidateWorkers(opts.threads); err != nil {
			return fmt.Errorf("invalid --num-threads: %w", err)
		}
		cfg.NumThreads = opts.threads
	}
	if flags.Changed("replace") {
		cfg.Replace = opts.replace
	}
	if flags.Changed("no-mmap") {
		cfg.NoMmap = opts.noMmap
	}
	if flags.Changed("copy-empty-dst") {
		cfg.CopyEmptyDst = opts.copyEmptyDst
	}
	if flags.Changed("no-cache") {
		cfg.NoCache = opts.noCache
	}
	cfg.DryRun = opts.dryRun
	cfg.ClearCache = opts.clearCache
	return nil
}

func printSummary(cmd *cobra.Command, report *torrentcombine.RunReport, dryRun bool) {
	s := report.Summary
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "--------------------")
	if dryRun {
		fmt.Fprintln(out, "Processing Summary (dry run):")
	} else {
		fmt.Fprintln(out, "Processing Summary:")
	}
	fmt.Fprintf(out, "Total groups: %d\n", s.Total)
	fmt.Fprintf(out, "  - Processed: %d\n", s.Processed)
	fmt.Fprintf(out, "  - Merged: %d\n", s.Merged)
	fmt.Fprintf(out, "  - Skipped: %d\n", s.Skipped)
	fmt.Fprintf(out, "  - Failed: %d\n", s.Failed)
	fmt.Fprintf(out, "  - Errors: %d\n", s.Errored)
	if s.Cached > 0 {
		fmt.Fprintf(out, "  - From cache: %d\n", s.Cached)
	}
	fmt.Fprintf(out, "Data processed: %s\n", torrentcombine.FormatSize(uint64(s.BytesProcessed)))

	for _, outcome := range report.Outcomes {
		if outcome.Result == nil {
			continue
		}
		for _, path := range outcome.Result.MergedFiles {
			fmt.Fprintf(out, "  -> %s\n", path)
		}
	}
	if len(report.Orphans) > 0 {
		fmt.Fprintf(out, "Leftover temporary files from earlier runs: %d\n", len(report.Orphans))
		for _, path := range report.Orphans {
			fmt.Fprintf(out, "  ? %s\n", path)
		}
	}
	fmt.Fprintln(out, "--------------------")
}
