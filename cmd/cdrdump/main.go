// Command cdrdump registers a small set of built-in aggregate types,
// prints their resolved TypeDescriptor info, and round-trips a sample
// through the codec and serdata packages end to end — a debug/demo tool
// for inspecting what a registered type's wire form looks like.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ddscore/cdrx/internal/logger"
	"github.com/ddscore/cdrx/pkg/typeconfig"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath string
	cfg        *typeconfig.Config
)

var rootCmd = &cobra.Command{
	Use:           "cdrdump",
	Short:         "Inspect and round-trip CDR/XCDR sample types",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := typeconfig.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		return logger.Init(logger.Config{Level: "INFO", Format: "text"})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: "+typeconfig.DefaultConfigPath()+")")
	rootCmd.AddCommand(versionCmd, listCmd, dumpCmd, roundtripCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("cdrdump %s (commit: %s, built: %s)\n", version, commit, date)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
