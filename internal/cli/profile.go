package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage relayctl profiles",
}

var profileSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a profile",
	Args:  cobra.ExactArgs(1),
	Example: `  relayctl profile set production --url https://relay.example.com --admin-secret s3cret
  relayctl profile set local --url http://localhost:8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		url, _ := cmd.Flags().GetString("url")
		webhookSecret, _ := cmd.Flags().GetString("webhook-secret")
		adminSecret, _ := cmd.Flags().GetString("admin-secret")

		if url == "" {
			return fmt.Errorf("--url is required")
		}

		if err := cfg.SaveProfile(name, &Profile{
			RelayURL:      url,
			WebhookSecret: webhookSecret,
			AdminSecret:   adminSecret,
		}); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}

		fmt.Printf("Profile '%s' saved and activated\n", name)
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Profiles) == 0 {
			fmt.Println("No profiles configured")
			return nil
		}
		for name, profile := range cfg.Profiles {
			marker := " "
			if name == cfg.CurrentProfile {
				marker = "*"
			}
			fmt.Printf("%s %s\t%s\n", marker, name, profile.RelayURL)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileListCmd)

	profileSetCmd.Flags().String("url", "", "relay base URL")
	profileSetCmd.Flags().String("webhook-secret", "", "webhook shared secret")
	profileSetCmd.Flags().String("admin-secret", "", "admin endpoint secret")
}
