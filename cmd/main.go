// Package main provides the classvoice entrypoint.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	classifyFile string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "classvoice",
		Short:         "Classroom communication service",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServeCmd,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Long: "Run the HTTP and websocket server. Settings come from defaults, then the YAML file named by " +
			"CLASSVOICE_CONFIG, then CLASSVOICE_* environment variables.",
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	classifyCmd := &cobra.Command{
		Use:   "classify [scores-json]",
		Short: "Classify expression scores and print the result",
		Long: "Classify one set of expression scores. Scores are read from the argument, from --file, " +
			"or from stdin, as a JSON object such as {\"surprised\":0.5,\"neutral\":0.4}.",
		Args: cobra.MaximumNArgs(1),
		RunE: runClassifyCmd,
	}
	classifyCmd.Flags().StringVarP(&classifyFile, "file", "f", "", "read scores from a JSON file")

	rootCmd.AddCommand(serveCmd, classifyCmd)
	return rootCmd
}
