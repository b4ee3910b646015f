package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

var rootCmd = &cobra.Command{
	Use:     "chatlite",
	Short:   "chatlite - real-time chat relay",
	Long:    `A single-binary WebSocket relay providing presence, channel fan-out, typing indicators, read receipts and anonymous matchmaking.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate("chatlite version {{.Version}}\n")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
