// Command community serves the community feed and direct messaging API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "community",
	Short: "community feed and direct messaging service",
	Long: `
  Serves the community feed, comments and direct messages over HTTP and
  websockets. Configuration is read from COMMUNITY_ prefixed environment
  variables and an optional .env file.
`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
