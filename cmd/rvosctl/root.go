package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/rvoskit/internal/config"
	"github.com/joshuapare/rvoskit/internal/idgen"
	"github.com/joshuapare/rvoskit/internal/logger"
	"github.com/joshuapare/rvoskit/internal/tracing"
	"github.com/joshuapare/rvoskit/kernel"
	"github.com/joshuapare/rvoskit/kernel/kfmt"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	jsonOut    bool
	configPath string
	heapSize   string
	heapMode   string

	session       string
	traceShutdown tracing.ShutdownFunc
)

var rootCmd = &cobra.Command{
	Use:   "rvosctl",
	Short: "Boot and exercise the RVOS kernel core",
	Long: `rvosctl boots the RVOS kernel core on a simulated RV64 machine: a page
allocator, a boundary-tag heap and a cooperative priority scheduler over
simulated RAM. It runs the reference user tasks, the allocator self-tests and
renders heap occupancy maps.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if traceShutdown == nil {
			return nil
		}
		shutdown := traceShutdown
		traceShutdown = nil
		return shutdown(context.Background())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Machine configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&heapSize, "heap-size", "", "Override heap.size (e.g. 64KiB, 128MiB)")
	rootCmd.PersistentFlags().StringVar(&heapMode, "heap-mode", "", "Override heap.mode (raw or pages)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and installs logging and tracing before any
// subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := cfg.LoggerOptions(os.Stderr)
	if err != nil {
		return err
	}
	if verbose {
		opts.Enabled = true
	}
	logger.Init(opts)

	session = idgen.Short()
	if cfg.Trace.Enabled {
		traceShutdown, err = tracing.Init(cmd.Root().Name(), cmd.Root().Version, session, cfg.Trace.Output)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	return nil
}

// loadConfig reads --config and applies the command line overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if heapSize != "" {
		size, err := config.ParseByteSize(heapSize)
		if err != nil {
			return nil, fmt.Errorf("--heap-size: %w", err)
		}
		cfg.Heap.Size = size
	}
	if heapMode != "" {
		cfg.Heap.Mode = heapMode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bootKernel boots a kernel whose fatal path prints the panic banner and
// returns instead of parking the process.
func bootKernel(ctx context.Context) (*kernel.Kernel, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	kfmt.SetHaltFunc(func() {})

	var tx io.Writer = os.Stdout
	if quiet || jsonOut {
		tx = io.Discard
	}
	k, err := kernel.Boot(ctx, cfg, kernel.Options{Console: tx, Logger: logger.L, Session: session})
	if err != nil {
		return nil, fmt.Errorf("boot failed: %w", err)
	}
	printVerbose("Booted session %s: RAM %s, heap %s (%s)\n",
		k.Session(), k.RAM(), k.Heap().Size(), cfg.Heap.Mode)
	return k, nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
