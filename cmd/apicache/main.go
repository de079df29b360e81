// Command apicache runs a caching front for a JSON API and offers a few
// operator utilities around the request cache.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/apicache/config"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	configFile string
	logLevel   string
	cfg        config.Config

	rootCmd = &cobra.Command{
		Use:           "apicache",
		Short:         "Deduplicating response cache for JSON APIs",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				loaded.Observe.Logging.Level = logLevel
				if err := loaded.Validate(); err != nil {
					return err
				}
			}
			cfg = loaded
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: ./apicache.yaml or $HOME/.config/apicache/apicache.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd, fetchCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "apicache:", err)
		os.Exit(1)
	}
}
