package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/joshuapare/rvoskit/kernel/block"
	"github.com/joshuapare/rvoskit/kernel/mem"
	"github.com/joshuapare/rvoskit/kernel/swtch"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// versionInfo is the build and machine description printed by version.
type versionInfo struct {
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	Built       string `json:"built"`
	Go          string `json:"go"`
	Session     string `json:"session"`
	Arch        string `json:"arch"`
	PageSize    uint64 `json:"page_size"`
	HeaderSize  int    `json:"block_header_size"`
	ContextSize int    `json:"context_size"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and machine information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func currentVersion() versionInfo {
	return versionInfo{
		Version:     version,
		Commit:      commit,
		Built:       date,
		Go:          runtime.Version(),
		Session:     session,
		Arch:        "rv64",
		PageSize:    uint64(mem.PageSize),
		HeaderSize:  block.HeaderSize,
		ContextSize: swtch.ContextSize,
	}
}

func runVersion() error {
	v := currentVersion()
	if jsonOut {
		return printJSON(v)
	}
	printInfo("rvosctl %s\n", v.Version)
	printInfo("  commit: %s\n", v.Commit)
	printInfo("  built: %s (%s)\n", v.Built, v.Go)
	printVerbose("  session: %s\n", v.Session)
	printVerbose("  machine: %s, %d-byte pages, %d-byte block tags, %d-byte contexts\n",
		v.Arch, v.PageSize, v.HeaderSize, v.ContextSize)
	return nil
}
