package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"findreplace/internal/config"
	"findreplace/internal/errors"
	"findreplace/internal/log"
)

var cfg = &config.Config{}
var extensionsStr string

var rootCmd = &cobra.Command{
	Use:   "findreplace [flags] [file patterns...]",
	Short: "Apply ordered find and replace rules to files",
	Long: `findreplace applies an ordered list of find and replace rules to a set of
files. Rules come from a rule file (JSON, YAML, TOML, HCL or CSV) or from
--find/--replace. Replacements may use capture references ($1, ${name}),
%NAME% variables and the functions LoadFileContent, LowerCase and UpperCase.`,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: setupLogging,
	RunE:              runFindReplace,
	SilenceErrors:     true,
	SilenceUsage:      true,
}

var harvestCmd = &cobra.Command{
	Use:   "harvest --rules FILE",
	Short: "Copy named captures from source files into target files",
	Long: `harvest reads each rule's source files, collects the named groups of the
first match of every source pattern and substitutes them as ${name} in the
rule's target replacement, which is then applied to the target files.`,
	Args: cobra.NoArgs,
	RunE: runHarvest,
}

// Execute runs the root command and reports any error on stderr.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if d, ok := errors.Details(err); ok && d.Type == errors.ErrTypeConfig {
			fmt.Fprintf(os.Stderr, "Error: %s\n\nRun 'findreplace --help' for usage.\n", err.Error())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.WorkingDir, "working-dir", ".", "Directory that relative paths are resolved against")
	flags.StringArrayVar(&cfg.Variables, "variable", nil, "Variable binding NAME=VALUE replacing %NAME% in rules (repeatable)")
	flags.BoolVar(&cfg.Backup, "backup", false, "Copy each file to name-YYYYMMDD-HHMMSS.ext before writing it")
	flags.BoolVar(&cfg.DryRun, "dry-run", false, "Report what would change without writing")
	flags.DurationVar(&cfg.MatchTimeout, "match-timeout", 0, "Abort a regex match after this long (0 for no limit)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Verbose mode")
	flags.BoolVar(&cfg.Debug, "debug", false, "Debug mode")
	flags.BoolVarP(&cfg.Quiet, "quiet", "q", false, "Quiet mode")

	rootCmd.Flags().StringVar(&cfg.PatternsFile, "patterns", "", "Rule file (.json, .yaml, .toml, .hcl or .csv)")
	rootCmd.Flags().StringVar(&cfg.Find, "find", "", "Find pattern of a single inline rule")
	rootCmd.Flags().StringVar(&cfg.Replace, "replace", "", "Replacement of the inline rule (__r, __n, __q and q__ are decoded)")
	rootCmd.Flags().BoolVar(&cfg.UseRegex, "regex", true, "Treat the inline find pattern as a regular expression")
	rootCmd.Flags().StringArrayVar(&cfg.Files, "files", nil, "File pattern, ** allowed (repeatable)")
	rootCmd.Flags().StringArrayVar(&cfg.Exclude, "exclude", nil, "Exclude file pattern (repeatable)")
	rootCmd.Flags().StringVar(&extensionsStr, "extensions", "", "File extensions to process (.htm,.txt, etc.)")
	rootCmd.Flags().StringVar(&cfg.InFile, "infile", "", "Single input file")
	rootCmd.Flags().StringVar(&cfg.OutFile, "outfile", "", "Output file for --infile (default: rewrite the input)")
	rootCmd.Flags().IntVar(&cfg.Workers, "workers", 0, "Files processed in parallel (default: CPU count, at most 8)")
	rootCmd.Flags().BoolVarP(&cfg.Revert, "revert", "r", false, "Restore the files written by the run recorded in --log")
	rootCmd.Flags().StringVar(&cfg.LogFile, "log", "", "Report file (default: stdout)")
	rootCmd.Flags().Var((*logFormatFlag)(&cfg.LogFormat), "log-format", "Report format (summary, json, csv)")

	rootCmd.MarkFlagsMutuallyExclusive("patterns", "find")
	rootCmd.MarkFlagsMutuallyExclusive("infile", "files")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	rootCmd.MarkFlagsMutuallyExclusive("debug", "quiet")

	harvestCmd.Flags().StringVar(&cfg.HarvestFile, "rules", "", "Harvest rule file (.json, .yaml or .toml)")
	_ = harvestCmd.MarkFlagRequired("rules")

	rootCmd.AddCommand(harvestCmd)
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	logger := log.Setup(cfg, os.Stderr)
	cmd.SetContext(logger.WithContext(cmd.Context()))
	return nil
}

func runFindReplace(cmd *cobra.Command, args []string) error {
	cfg.Files = append(cfg.Files, args...)

	if extensionsStr != "" {
		cfg.Extensions = strings.Split(extensionsStr, ",")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	return executeFindReplace(cmd.Context(), cfg)
}

func runHarvest(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return executeHarvest(cmd.Context(), cfg)
}

type logFormatFlag config.LogFormat

func (f *logFormatFlag) String() string {
	return string(*f)
}

func (f *logFormatFlag) Set(v string) error {
	switch config.LogFormat(v) {
	case config.LogFormatSummary, config.LogFormatJSON, config.LogFormatCSV:
		*f = logFormatFlag(v)
		return nil
	default:
		return fmt.Errorf("must be 'summary', 'json' or 'csv'")
	}
}

func (f *logFormatFlag) Type() string {
	return "string"
}
