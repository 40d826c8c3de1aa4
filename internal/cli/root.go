// Package cli implements the relayctl command line tool for operating a
// call relay deployment.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *ProfileConfig
)

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Call relay operations CLI",
	Long: `relayctl is the command-line interface for the call relay.

Check health, send test call events, trigger publisher map rebuilds,
and inspect the dead letter queue from your terminal.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.relayctl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use")
	rootCmd.PersistentFlags().String("relay-url", "", "relay base URL (overrides profile)")
}

func initConfig() {
	var err error
	cfg, err = loadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = defaultConfig()
	}
}

// activeProfile resolves the profile for a command, applying the
// --relay-url override.
func activeProfile(cmd *cobra.Command) (*Profile, error) {
	name, _ := cmd.Flags().GetString("profile")
	profile, err := cfg.Profile(name)
	if err != nil {
		return nil, err
	}

	if override, _ := cmd.Flags().GetString("relay-url"); override != "" {
		p := *profile
		p.RelayURL = override
		return &p, nil
	}
	return profile, nil
}
