package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/rootkit/cmd/rootctl/logger"
	"github.com/joshuapare/rootkit/root/alloc"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	logFile  bool
	logDir   string
	poolSize int
	classes  string
)

// out formats counts with thousands separators.
var out = message.NewPrinter(language.English)

var rootCmd = &cobra.Command{
	Use:   "rootctl",
	Short: "Inspect and stress movable-root arenas",
	Long: `rootctl inspects the pool layout of a root arena and runs create,
scan and deferred-delete workloads against a moving toy collector to check
that every root survives relocation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		return logger.Init(logger.Options{
			Enabled: logFile || verbose,
			LogDir:  logDir,
			Level:   level,
			Stderr:  !logFile,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log", false, "Write a JSON log file")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Log directory (default ~/.rootctl/logs)")
	rootCmd.PersistentFlags().IntVar(&poolSize, "pool-size", 16<<10, "Pool block size in bytes")
	rootCmd.PersistentFlags().
		StringVar(&classes, "classes", "balanced", "Size class preset: single, balanced, wide")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// sizeClasses resolves the --classes preset.
func sizeClasses(name string) (alloc.SizeClassConfig, error) {
	switch name {
	case "single":
		return alloc.ConfigSingle, nil
	case "balanced", "":
		return alloc.ConfigBalanced, nil
	case "wide":
		return alloc.ConfigWide, nil
	default:
		return alloc.SizeClassConfig{}, fmt.Errorf("unknown size class preset %q", name)
	}
}

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		out.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		out.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
