package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/callrelay-systems/callrelay/internal/models"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild-map",
	Short: "Rebuild the DID publisher map",
	Long:  "Trigger a synchronous rebuild of the DID publisher map and counts tables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := activeProfile(cmd)
		if err != nil {
			return err
		}

		headers := map[string]string{}
		if profile.AdminSecret != "" {
			headers["X-Admin-Secret"] = profile.AdminSecret
		}

		var resp models.RebuildResponse
		status, err := postJSON(profile.RelayURL+"/admin/rebuild-map", headers, nil, &resp)
		if err != nil {
			return err
		}

		switch status {
		case http.StatusOK:
			fmt.Printf("Rebuild complete: %d DIDs across %d publishers\n", resp.DIDCount, resp.PublisherCount)
			return nil
		case http.StatusConflict:
			return fmt.Errorf("a rebuild is already in progress")
		case http.StatusUnauthorized:
			return fmt.Errorf("admin secret rejected (set admin_secret in your profile)")
		default:
			return fmt.Errorf("rebuild failed with status %d", status)
		}
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
