package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helmcode/kubediag/cmd"
)

var (
	version = "v0.1.0" // Overwritten at build time
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kubediag",
		Short: "AI-powered Kubernetes problem diagnosis",
		Long: `kubediag investigates Kubernetes problems described in plain language. It
plans diagnostic steps, runs read-only tools against the cluster behind a
namespace and command allowlist, and reports the root cause with
recommendations. Installed as kubectl-diag it also works as a kubectl plugin.`,
		SilenceUsage: true,
	}

	// Disable automatic 'completion' command added by cobra
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(
		cmd.NewDiagnoseCmd(),
		cmd.NewBatchCmd(),
		cmd.NewToolsCmd(),
		cmd.NewAuditCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kubediag version %s\n", version)
		},
	}
}
